// Package geometry rewrites connector elements so their endpoints anchor to
// the edges of the shapes they reference. It is a pure transformation over a
// creation batch plus a read-only lookup of already-stored elements; it never
// touches storage and does not keep connectors updated after shapes move.
package geometry

import "math"

// BindingGap is the fixed outward offset between a shape's border and the
// connector endpoint anchored to it.
const BindingGap = 8.0

// Shape is the minimal geometry of a bindable element.
type Shape struct {
	ID     string
	Type   string
	X, Y   float64
	Width  float64
	Height float64
}

// Center returns the shape's center point.
func (s Shape) Center() (float64, float64) {
	return s.X + s.Width/2, s.Y + s.Height/2
}

// EdgeIntersection returns the point where the ray from the shape's center
// toward (tx, ty) crosses the shape's border. Shapes without a known outline
// are treated as the single point at their recorded position.
func EdgeIntersection(s Shape, tx, ty float64) (float64, float64) {
	cx, cy := s.Center()
	dx, dy := tx-cx, ty-cy
	if dx == 0 && dy == 0 {
		return cx, cy
	}

	switch s.Type {
	case "rectangle":
		halfW, halfH := s.Width/2, s.Height/2
		scale := math.Inf(1)
		if dx != 0 {
			scale = halfW / math.Abs(dx)
		}
		if dy != 0 {
			if sy := halfH / math.Abs(dy); sy < scale {
				scale = sy
			}
		}
		if math.IsInf(scale, 1) {
			return cx, cy
		}
		return cx + dx*scale, cy + dy*scale
	case "ellipse":
		theta := math.Atan2(dy, dx)
		return cx + (s.Width/2)*math.Cos(theta), cy + (s.Height/2)*math.Sin(theta)
	case "diamond":
		halfW, halfH := s.Width/2, s.Height/2
		if halfW == 0 || halfH == 0 {
			return cx, cy
		}
		d := math.Abs(dx)/halfW + math.Abs(dy)/halfH
		if d == 0 {
			return cx, cy
		}
		return cx + dx/d, cy + dy/d
	default:
		return s.X, s.Y
	}
}

// anchorPoint is EdgeIntersection pushed outward by BindingGap along the
// center-to-target ray, so the rendered connector clears the shape border.
func anchorPoint(s Shape, tx, ty float64) (float64, float64) {
	px, py := EdgeIntersection(s, tx, ty)
	cx, cy := s.Center()
	dx, dy := tx-cx, ty-cy
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return px, py
	}
	return px + dx/dist*BindingGap, py + dy/dist*BindingGap
}

// ResolveBindings processes a batch of newly created element payloads. Every
// connector carrying start/end shape references gets its endpoints moved to
// the referenced shapes' edges and its references replaced with binding
// metadata; everything else passes through unchanged. Referenced shapes are
// resolved batch-first, then through lookup (the stored element set).
func ResolveBindings(batch []map[string]any, lookup func(id string) (map[string]any, bool)) []map[string]any {
	byID := make(map[string]map[string]any, len(batch))
	for _, el := range batch {
		if id, ok := el["id"].(string); ok && id != "" {
			byID[id] = el
		}
	}
	resolve := func(id string) (Shape, bool) {
		payload, ok := byID[id]
		if !ok && lookup != nil {
			payload, ok = lookup(id)
		}
		if !ok {
			return Shape{}, false
		}
		return payloadShape(payload), true
	}

	out := make([]map[string]any, 0, len(batch))
	for _, el := range batch {
		out = append(out, resolveConnector(el, resolve))
	}
	return out
}

func resolveConnector(el map[string]any, resolve func(id string) (Shape, bool)) map[string]any {
	typ, _ := el["type"].(string)
	if typ != "arrow" && typ != "line" {
		return el
	}
	startID := refID(el["start"])
	endID := refID(el["end"])
	if startID == "" && endID == "" {
		return el
	}

	rewritten := make(map[string]any, len(el))
	for k, v := range el {
		rewritten[k] = v
	}

	rawStartX, rawStartY, rawEndX, rawEndY := rawEndpoints(el)

	startShape, startOK := resolve(startID)
	endShape, endOK := resolve(endID)

	// Each bound end aims at the other end's center, or at the raw endpoint
	// when the other side is unbound.
	startTX, startTY := rawEndX, rawEndY
	if endOK {
		startTX, startTY = endShape.Center()
	}
	endTX, endTY := rawStartX, rawStartY
	if startOK {
		endTX, endTY = startShape.Center()
	}

	sx, sy := rawStartX, rawStartY
	if startOK {
		sx, sy = anchorPoint(startShape, startTX, startTY)
		rewritten["startBinding"] = map[string]any{
			"elementId": startShape.ID,
			"focus":     0.0,
			"gap":       BindingGap,
		}
	}
	ex, ey := rawEndX, rawEndY
	if endOK {
		ex, ey = anchorPoint(endShape, endTX, endTY)
		rewritten["endBinding"] = map[string]any{
			"elementId": endShape.ID,
			"focus":     0.0,
			"gap":       BindingGap,
		}
	}

	rewritten["x"] = sx
	rewritten["y"] = sy
	rewritten["width"] = math.Abs(ex - sx)
	rewritten["height"] = math.Abs(ey - sy)
	rewritten["points"] = []any{
		[]any{0.0, 0.0},
		[]any{ex - sx, ey - sy},
	}
	delete(rewritten, "start")
	delete(rewritten, "end")
	return rewritten
}

// rawEndpoints reads the connector's unresolved endpoints: its position plus
// the first and last relative points, falling back to width/height when no
// point list is present.
func rawEndpoints(el map[string]any) (sx, sy, ex, ey float64) {
	x := num(el["x"])
	y := num(el["y"])
	sx, sy = x, y
	ex, ey = x+num(el["width"]), y+num(el["height"])
	points, ok := el["points"].([]any)
	if !ok || len(points) == 0 {
		return sx, sy, ex, ey
	}
	if first, ok := pointAt(points, 0); ok {
		sx, sy = x+first[0], y+first[1]
	}
	if last, ok := pointAt(points, len(points)-1); ok {
		ex, ey = x+last[0], y+last[1]
	}
	return sx, sy, ex, ey
}

func pointAt(points []any, i int) ([2]float64, bool) {
	pair, ok := points[i].([]any)
	if !ok || len(pair) < 2 {
		return [2]float64{}, false
	}
	return [2]float64{num(pair[0]), num(pair[1])}, true
}

func payloadShape(payload map[string]any) Shape {
	id, _ := payload["id"].(string)
	typ, _ := payload["type"].(string)
	return Shape{
		ID:     id,
		Type:   typ,
		X:      num(payload["x"]),
		Y:      num(payload["y"]),
		Width:  num(payload["width"]),
		Height: num(payload["height"]),
	}
}

// refID accepts both {"id": "..."} objects and bare string references.
func refID(v any) string {
	switch ref := v.(type) {
	case map[string]any:
		id, _ := ref["id"].(string)
		return id
	case string:
		return ref
	default:
		return ""
	}
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
