package model

import "encoding/json"

// DeltaKind tags which variant a Delta node holds. Representing deltas as an
// explicit leaf/object/array tree (rather than walking dynamic
// map[string]interface{} values inline) keeps Merge a pure, easily-tested
// function instead of reflection over arbitrary JSON shapes.
type DeltaKind int

const (
	DeltaLeaf DeltaKind = iota
	DeltaObject
	DeltaArray
)

// Delta is one node of a profile-update delta tree.
type Delta struct {
	Kind   DeltaKind
	Leaf   interface{}
	Object map[string]Delta
	Array  []Delta
}

// DeltaFromJSON parses a JSON document into a Delta tree.
func DeltaFromJSON(raw []byte) (Delta, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return Delta{}, err
	}
	return deltaFromAny(v), nil
}

func deltaFromAny(v interface{}) Delta {
	switch t := v.(type) {
	case map[string]interface{}:
		obj := make(map[string]Delta, len(t))
		for k, vv := range t {
			obj[k] = deltaFromAny(vv)
		}
		return Delta{Kind: DeltaObject, Object: obj}
	case []interface{}:
		arr := make([]Delta, len(t))
		for i, vv := range t {
			arr[i] = deltaFromAny(vv)
		}
		return Delta{Kind: DeltaArray, Array: arr}
	default:
		return Delta{Kind: DeltaLeaf, Leaf: t}
	}
}

// ToAny converts a Delta tree back into plain Go values suitable for
// json.Marshal or for re-decoding into a struct.
func (d Delta) ToAny() interface{} {
	switch d.Kind {
	case DeltaObject:
		m := make(map[string]interface{}, len(d.Object))
		for k, v := range d.Object {
			m[k] = v.ToAny()
		}
		return m
	case DeltaArray:
		a := make([]interface{}, len(d.Array))
		for i, v := range d.Array {
			a[i] = v.ToAny()
		}
		return a
	default:
		return d.Leaf
	}
}

// Merge deep-merges delta onto dst and returns the result: object fields
// merge key by key (recursively), scalar leaves and whole arrays are
// replaced outright by the delta's value. dst and delta are never mutated.
//
// This is the pure function backing UserServerProfileUpdateRequest:
// fields not mentioned in delta are carried
// over unchanged; mentioned scalars are overwritten; mentioned objects
// merge recursively; mentioned arrays replace the old array whole.
func Merge(dst, delta Delta) Delta {
	if dst.Kind == DeltaObject && delta.Kind == DeltaObject {
		merged := make(map[string]Delta, len(dst.Object)+len(delta.Object))
		for k, v := range dst.Object {
			merged[k] = v
		}
		for k, v := range delta.Object {
			if existing, ok := merged[k]; ok {
				merged[k] = Merge(existing, v)
			} else {
				merged[k] = v
			}
		}
		return Delta{Kind: DeltaObject, Object: merged}
	}

	// Scalars replace scalars, arrays replace whole, and a kind mismatch
	// (e.g. an object field overwritten by an array) is a full replacement
	// by the delta's value in every case.
	return delta
}

// MergeServerProfileJSON merges a raw JSON delta document onto a
// ServerProfile, returning the merged profile. It round-trips the profile
// through the generic Delta representation so arbitrary nested keys the
// struct doesn't name explicitly (inside Loadout/Stats) still merge
// correctly.
func MergeServerProfileJSON(dst ServerProfile, deltaJSON []byte) (ServerProfile, error) {
	dstJSON, err := json.Marshal(dst)
	if err != nil {
		return ServerProfile{}, err
	}

	dstDelta, err := DeltaFromJSON(dstJSON)
	if err != nil {
		return ServerProfile{}, err
	}

	delta, err := DeltaFromJSON(deltaJSON)
	if err != nil {
		return ServerProfile{}, err
	}

	merged := Merge(dstDelta, delta)

	mergedJSON, err := json.Marshal(merged.ToAny())
	if err != nil {
		return ServerProfile{}, err
	}

	var out ServerProfile
	if err := json.Unmarshal(mergedJSON, &out); err != nil {
		return ServerProfile{}, err
	}
	return out, nil
}
