package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tingly-dev/nodepack/internal/archive"
	"github.com/tingly-dev/nodepack/internal/export"
)

// parseExportOptions reads the export query parameters
//
//   - group, name: package identity, default to the configured defaults
//   - nodeOnly: export the node without descendants, default false
//   - mountPath: archive path prefix, defaults to the requested path
//   - exclude: repeatable doublestar pattern of subtrees to skip
//   - format: jsonl (default), zstd or base64
func (s *Server) parseExportOptions(c *gin.Context) (export.Options, error) {
	d := s.defaults.Load()
	opts := export.Options{
		Group:     d.group,
		Name:      d.name,
		MountPath: c.Query("mountPath"),
		Exclude:   c.QueryArray("exclude"),
	}
	if v, ok := c.GetQuery("group"); ok {
		opts.Group = v
	}
	if v, ok := c.GetQuery("name"); ok {
		opts.Name = v
	}
	if v := c.Query("nodeOnly"); v != "" {
		nodeOnly, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("%w: nodeOnly must be a boolean", export.ErrInvalidOptions)
		}
		opts.NodeOnly = nodeOnly
	}
	format, err := archive.ParseFormat(c.Query("format"))
	if err != nil {
		return opts, fmt.Errorf("%w: %w", export.ErrInvalidOptions, err)
	}
	opts.Format = format
	return opts, nil
}

// Export serves GET and HEAD /export/*path.
//
// Everything that can be rejected is checked before the first byte, so
// those failures get a proper status and a JSON body. Once streaming has
// started the status is committed and the outcome is only reported in the
// status trailer.
func (s *Server) Export(c *gin.Context) {
	ctx := c.Request.Context()
	exporter := s.exporter.Load()

	opts, err := s.parseExportOptions(c)
	if err != nil {
		exportError(c, err)
		return
	}

	node, err := exporter.Validate(ctx, c.Param("path"))
	if err != nil {
		exportError(c, err)
		return
	}

	opts.RootPath = node.Path
	if _, err := opts.Normalize(); err != nil {
		exportError(c, err)
		return
	}

	if c.Request.Method == http.MethodHead {
		s.streamer.SetHeaders(c.Writer.Header(), node.Name(), opts.Format)
		c.Writer.Header().Del("Trailer")
		c.Status(http.StatusOK)
		return
	}

	err = s.streamer.Stream(c.Writer, node.Name(), opts.Format, func(w io.Writer) error {
		_, err := exporter.ExportNode(ctx, node, opts, w)
		return err
	})
	if err == nil {
		return
	}
	if !c.Writer.Written() {
		h := c.Writer.Header()
		for _, k := range []string{"Content-Type", "Content-Disposition", "Trailer", export.StatusTrailer} {
			h.Del(k)
		}
		exportError(c, err)
		return
	}
	// the exporter has logged it; keep it visible to the request log
	_ = c.Error(err)
}

func exportError(c *gin.Context, err error) {
	status := export.StatusCode(err)
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
		"kind":    export.Kind(err),
	})
}

// Health reports liveness
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "nodepack",
		"version": s.version,
	})
}
