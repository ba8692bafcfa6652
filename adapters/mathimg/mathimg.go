// Package mathimg renders math notation to PNG images.
package mathimg

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-latex/latex/drawtex/drawimg"
	"github.com/go-latex/latex/mtex"

	"github.com/himawari-bot/himawari/ports"
)

// Renderer rasterizes LaTeX math expressions.
type Renderer struct {
	size float64
	dpi  float64
}

// NewRenderer creates a renderer with the given font size (points) and
// resolution.
func NewRenderer(size, dpi float64) *Renderer {
	if size <= 0 {
		size = 26
	}
	if dpi <= 0 {
		dpi = 144
	}
	return &Renderer{size: size, dpi: dpi}
}

// RenderPNG renders a math expression to a PNG. The expression is
// wrapped in inline math delimiters when the caller did not supply any.
func (r *Renderer) RenderPNG(expr string) (png []byte, err error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}
	if !strings.Contains(expr, "$") {
		expr = "$" + expr + "$"
	}

	// The parser panics on notation it has no handler for, such as
	// superscripts. That must come back to the caller as an error,
	// never take the process down.
	defer func() {
		if p := recover(); p != nil {
			png, err = nil, fmt.Errorf("render %q: unsupported expression: %v", expr, p)
		}
	}()

	var buf bytes.Buffer
	dst := drawimg.NewRenderer(&buf)
	if err := mtex.Render(dst, expr, r.size, r.dpi, nil); err != nil {
		return nil, fmt.Errorf("render %q: %w", expr, err)
	}
	return buf.Bytes(), nil
}

// Ensure interface compliance.
var _ ports.MathRenderer = (*Renderer)(nil)
