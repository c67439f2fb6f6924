// Package fingerprint produces a stable, order-insensitive string for an
// arbitrary value graph, used as the dedup/cache key (spec §4.A).
//
// It generalizes the teacher's URL normalizer+xxhash approach
// (internal/edge/hash.URLNormalizer, which canonicalizes one known shape
// — a URL — before hashing it) into a reflect-driven visitor that can
// canonicalize any Go value: primitives, slices/arrays (ordered), maps
// (sorted by key fingerprint), structs, pointers, and cyclic graphs.
package fingerprint

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Serializer lets a caller supply an opaque key derivation, bypassing
// normalization entirely (spec §4.A: "when supplied, it is treated as
// opaque — no further normalization").
type Serializer func(v any) string

var funcIdentityCounter atomic.Int64
var funcIdentities = struct {
	mu sync.Mutex
	m  map[uintptr]int64
}{m: make(map[uintptr]int64)}

// Of computes the fingerprint of v. If serializer is non-nil it is used
// verbatim instead of the structural algorithm below.
func Of(v any, serializer Serializer) string {
	if serializer != nil {
		return serializer(v)
	}
	var b strings.Builder
	seen := make(map[uintptr]int)
	w := &walker{seen: seen}
	w.write(&b, reflect.ValueOf(v))
	return b.String()
}

// Hash reduces a fingerprint string to a fixed-width hex digest, the way
// the teacher's URLNormalizer.Hash reduces a normalized URL with xxhash.
func Hash(fp string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(fp))
}

type walker struct {
	seen map[uintptr]int // identity -> back-reference id, for cycle detection
	next int
}

func (w *walker) write(b *strings.Builder, v reflect.Value) {
	if !v.IsValid() {
		b.WriteString("n:nil")
		return
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			b.WriteString("n:nil")
			return
		}
		w.write(b, v.Elem())
		return
	case reflect.Ptr:
		if v.IsNil() {
			b.WriteString("p:nil")
			return
		}
		w.writeCyclic(b, v.Pointer(), func() { w.write(b, v.Elem()) })
		return
	case reflect.Bool:
		fmt.Fprintf(b, "b:%v", v.Bool())
	case reflect.String:
		fmt.Fprintf(b, "s:%q", v.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		fmt.Fprintf(b, "i:%d", v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		fmt.Fprintf(b, "u:%d", v.Uint())
	case reflect.Float32, reflect.Float64:
		w.writeFloat(b, v.Float())
	case reflect.Func:
		w.writeFunc(b, v)
	case reflect.Slice:
		if v.IsNil() {
			b.WriteString("a:nil")
			return
		}
		w.writeSequence(b, v)
	case reflect.Array:
		w.writeSequence(b, v)
	case reflect.Map:
		if v.IsNil() {
			b.WriteString("m:nil")
			return
		}
		w.writeCyclic(b, v.Pointer(), func() { w.writeMap(b, v) })
	case reflect.Struct:
		w.writeStruct(b, v)
	default:
		fmt.Fprintf(b, "x:%v", v.Interface())
	}
}

// writeCyclic tracks identity so a back-reference is emitted instead of
// recursing into an already-visiting pointer/map (spec §4.A, §9).
func (w *walker) writeCyclic(b *strings.Builder, ptr uintptr, emit func()) {
	if id, ok := w.seen[ptr]; ok {
		fmt.Fprintf(b, "ref:%d", id)
		return
	}
	id := w.next
	w.next++
	w.seen[ptr] = id
	fmt.Fprintf(b, "@%d{", id)
	emit()
	b.WriteString("}")
}

func (w *walker) writeFloat(b *strings.Builder, f float64) {
	switch {
	case f != f: // NaN
		b.WriteString("f:NaN")
	case f == 0 && strconv.FormatFloat(f, 'g', -1, 64) == "-0":
		b.WriteString("f:-0")
	default:
		fmt.Fprintf(b, "f:%s", strconv.FormatFloat(f, 'g', -1, 64))
	}
}

func (w *walker) writeFunc(b *strings.Builder, v reflect.Value) {
	ptr := v.Pointer()
	funcIdentities.mu.Lock()
	id, ok := funcIdentities.m[ptr]
	if !ok {
		id = funcIdentityCounter.Add(1)
		funcIdentities.m[ptr] = id
	}
	funcIdentities.mu.Unlock()
	fmt.Fprintf(b, "fn:%d", id)
}

// writeSequence preserves order (ordered containers keep position).
func (w *walker) writeSequence(b *strings.Builder, v reflect.Value) {
	b.WriteString("seq[")
	n := v.Len()
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		w.write(b, v.Index(i))
	}
	b.WriteString("]")
}

// writeMap sorts entries by key fingerprint so key order never affects
// the result (spec §4.A, §8: "permuting object keys yields the same
// fingerprint").
func (w *walker) writeMap(b *strings.Builder, v reflect.Value) {
	type entry struct {
		keyFP string
		valFP string
	}
	keys := v.MapKeys()
	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		var kb, vb strings.Builder
		sub := &walker{seen: cloneSeen(w.seen), next: w.next}
		sub.write(&kb, k)
		sub.write(&vb, v.MapIndex(k))
		entries = append(entries, entry{keyFP: kb.String(), valFP: vb.String()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].keyFP < entries[j].keyFP })
	b.WriteString("map{")
	for i, e := range entries {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(e.keyFP)
		b.WriteString(":")
		b.WriteString(e.valFP)
	}
	b.WriteString("}")
}

func (w *walker) writeStruct(b *strings.Builder, v reflect.Value) {
	t := v.Type()

	if t == reflect.TypeOf(time.Time{}) {
		tm := v.Interface().(time.Time)
		fmt.Fprintf(b, "date:%d", tm.UnixMilli())
		return
	}
	if t == reflect.TypeOf(regexp.Regexp{}) {
		re := v.Interface().(regexp.Regexp)
		fmt.Fprintf(b, "re:%s", re.String())
		return
	}

	b.WriteString("struct{")
	for i := 0; i < t.NumField(); i++ {
		if i > 0 {
			b.WriteString(",")
		}
		f := t.Field(i)
		b.WriteString(f.Name)
		b.WriteString(":")
		fv := v.Field(i)
		if !fv.CanInterface() {
			b.WriteString("<unexported>")
			continue
		}
		w.write(b, fv)
	}
	b.WriteString("}")
}

func cloneSeen(m map[uintptr]int) map[uintptr]int {
	out := make(map[uintptr]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
