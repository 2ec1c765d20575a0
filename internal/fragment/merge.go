package fragment

import (
	"fmt"
	"reflect"

	"dario.cat/mergo"
	"github.com/mitchellh/copystructure"
)

// Merge deep-merges override onto base and returns the result.
//
// Non-zero scalars in override replace those in base, nested objects are
// merged field by field, map keys from override replace those in base and
// sequences are concatenated as base followed by override. Neither argument
// is modified.
func Merge(base, override Fragment) (Fragment, error) {
	dst, err := Clone(base)
	if err != nil {
		return Fragment{}, err
	}

	src, err := Clone(override)
	if err != nil {
		return Fragment{}, err
	}

	if err := mergo.Merge(&dst, src,
		mergo.WithOverride,
		mergo.WithAppendSlice,
		mergo.WithTransformers(boolTransformer{}),
	); err != nil {
		return Fragment{}, fmt.Errorf("%w: %w", ErrMerge, err)
	}

	return dst, nil
}

// Clone returns a deep copy of f sharing no mutable state with it.
func Clone(f Fragment) (Fragment, error) {
	v, err := copystructure.Copy(f)
	if err != nil {
		return Fragment{}, fmt.Errorf("%w: copy: %w", ErrMerge, err)
	}
	return v.(Fragment), nil
}

var boolPtrType = reflect.TypeOf((*bool)(nil))

// boolTransformer lets an explicit false in the override replace true in
// the base, which mergo would otherwise treat as an empty value.
type boolTransformer struct{}

func (boolTransformer) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ != boolPtrType {
		return nil
	}
	return func(dst, src reflect.Value) error {
		if dst.CanSet() && !src.IsNil() {
			dst.Set(src)
		}
		return nil
	}
}
