package expr

import (
	"fmt"
	"sort"

	"github.com/selene-data/illumination.report/internal/raster"
)

// EvaluateVolume evaluates an expression over named raster volumes and
// produces a new volume of the same shape, evaluating once per (t, y, x)
// coordinate with each referenced layer bound to its sample at that
// coordinate.
//
// A constant expression (no free variables) needs a shape to broadcast
// into: reference must be non-nil, and the scalar result fills every
// coordinate of a volume shaped like it. When the expression references
// layers, all of them must be present in bindings and share identical
// dimensions; both conditions are checked before any iteration starts.
//
// The declared value domain of the output is [0,1]; values outside it are
// not an error here (display ranging is a downstream concern).
func EvaluateVolume(expression string, bindings map[string]*raster.Volume, reference *raster.Volume) (*raster.Volume, error) {
	rpn, err := Parse(expression)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]bool)
	for _, tok := range rpn {
		if tok.Kind == TokenVariable {
			vars[tok.Text] = true
		}
	}

	if len(vars) == 0 {
		if reference == nil {
			return nil, fmt.Errorf("constant expression %q has no shape: no reference volume available", expression)
		}
		val, err := Evaluate(rpn, nil)
		if err != nil {
			return nil, err
		}
		out := raster.NewVolume(reference.Dims)
		fill := float32(val)
		for i := range out.Data {
			out.Data[i] = fill
		}
		return out, nil
	}

	// Deterministic order keeps error messages and iteration stable.
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var dims raster.Dims
	for i, name := range names {
		vol, ok := bindings[name]
		if !ok || vol == nil {
			return nil, fmt.Errorf("expression references layer %q which is not loaded", name)
		}
		if i == 0 {
			dims = vol.Dims
			continue
		}
		if !vol.Dims.Equal(dims) {
			return nil, fmt.Errorf("layer dimension mismatch: %q is %s, %q is %s",
				names[0], dims, name, vol.Dims)
		}
	}

	out := raster.NewVolume(dims)
	coord := make(map[string]float64, len(names))
	for t := 0; t < dims.TimeSteps; t++ {
		for y := 0; y < dims.Height; y++ {
			for x := 0; x < dims.Width; x++ {
				for _, name := range names {
					coord[name] = float64(bindings[name].At(t, y, x))
				}
				val, err := Evaluate(rpn, coord)
				if err != nil {
					return nil, err
				}
				out.Set(t, y, x, float32(val))
			}
		}
	}
	return out, nil
}
