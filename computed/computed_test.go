package computed

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/schema"
)

func prop(name string, deps []string, fn schema.ComputeFunc) *schema.ComputedProperty {
	return &schema.ComputedProperty{Name: name, Dependencies: deps, Compute: fn}
}

func fullName(e schema.FieldReader) (any, error) {
	return fmt.Sprintf("%v %v", e.Get("firstName"), e.Get("lastName")), nil
}

func nameLength(e schema.FieldReader) (any, error) {
	s, _ := e.Get("fullName").(string)
	return int64(len(s)), nil
}

func TestEvaluateChain(t *testing.T) {
	// nameLength reads fullName, itself computed; declaration order is
	// reversed to prove evaluation follows dependencies, not declaration.
	eng, err := New([]*schema.ComputedProperty{
		prop("nameLength", []string{"fullName"}, nameLength),
		prop("fullName", []string{"firstName", "lastName"}, fullName),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fullName", "nameLength"}, eng.Order())

	e := rowan.Entity{"firstName": "John", "lastName": "Doe"}
	eng.Evaluate(e)
	assert.Equal(t, "John Doe", e["fullName"])
	assert.Equal(t, int64(8), e["nameLength"])
}

func TestInferredDependencies(t *testing.T) {
	eng, err := New([]*schema.ComputedProperty{
		prop("nameLength", nil, nameLength),
		prop("fullName", nil, fullName),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"firstName", "lastName"}, eng.Dependencies("fullName"))
	assert.Equal(t, []string{"fullName"}, eng.Dependencies("nameLength"))
	assert.Equal(t, []string{"fullName", "nameLength"}, eng.Order())

	e := rowan.Entity{"firstName": "Ada", "lastName": "Lovelace"}
	eng.Evaluate(e)
	assert.Equal(t, "Ada Lovelace", e["fullName"])
	assert.Equal(t, int64(12), e["nameLength"])
}

func TestDeclaredWinsOverInference(t *testing.T) {
	// The implementation reads b, but the declaration names a. Declared
	// dependencies are authoritative.
	eng, err := New([]*schema.ComputedProperty{
		prop("x", []string{"a"}, func(e schema.FieldReader) (any, error) {
			return e.Get("b"), nil
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, eng.Dependencies("x"))
}

func TestProbePanicKeepsPartialReads(t *testing.T) {
	eng, err := New([]*schema.ComputedProperty{
		prop("risky", nil, func(e schema.FieldReader) (any, error) {
			a := e.Get("a")
			// The probe feeds nil values, so this assertion panics there.
			return a.(string) + e.Get("b").(string), nil
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, eng.Dependencies("risky"))
}

func TestThreeCycleDetected(t *testing.T) {
	read := func(dep string) schema.ComputeFunc {
		return func(e schema.FieldReader) (any, error) { return e.Get(dep), nil }
	}
	eng, err := New([]*schema.ComputedProperty{
		prop("a", []string{"c"}, read("c")),
		prop("b", []string{"a"}, read("a")),
		prop("c", []string{"b"}, read("b")),
		prop("d", []string{"name"}, read("name")),
	})
	require.NoError(t, err)

	require.Len(t, eng.Cycles(), 1)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, eng.Cycles()[0])
	// Cycle members are skipped entirely; the acyclic property survives.
	assert.Equal(t, []string{"d"}, eng.Order())

	e := rowan.Entity{"name": "n"}
	eng.Evaluate(e)
	assert.Equal(t, "n", e["d"])
	assert.False(t, e.Has("a"))
	assert.False(t, e.Has("b"))
	assert.False(t, e.Has("c"))
}

func TestSelfCycle(t *testing.T) {
	eng, err := New([]*schema.ComputedProperty{
		prop("a", []string{"a"}, func(e schema.FieldReader) (any, error) {
			return e.Get("a"), nil
		}),
	})
	require.NoError(t, err)
	require.Len(t, eng.Cycles(), 1)
	assert.Equal(t, []string{"a"}, eng.Cycles()[0])
	assert.Empty(t, eng.Order())
}

func TestEvaluationErrorIsolated(t *testing.T) {
	eng, err := New([]*schema.ComputedProperty{
		prop("bad", []string{"x"}, func(e schema.FieldReader) (any, error) {
			return nil, errors.New("boom")
		}),
		prop("worse", []string{"x"}, func(e schema.FieldReader) (any, error) {
			panic("kaboom")
		}),
		prop("good", []string{"x"}, func(e schema.FieldReader) (any, error) {
			return "ok", nil
		}),
	})
	require.NoError(t, err)

	e := rowan.Entity{"x": 1}
	eng.Evaluate(e)
	assert.Equal(t, "ok", e["good"])
	assert.False(t, e.Has("bad"))
	assert.False(t, e.Has("worse"))
}

func TestSkipProperties(t *testing.T) {
	eng, err := New([]*schema.ComputedProperty{
		prop("fullName", nil, fullName),
		prop("nameLength", []string{"fullName"}, nameLength),
	})
	require.NoError(t, err)

	e := rowan.Entity{"firstName": "John", "lastName": "Doe"}
	eng.Evaluate(e, "nameLength")
	assert.Equal(t, "John Doe", e["fullName"])
	assert.False(t, e.Has("nameLength"))
}

func TestEvaluateAll(t *testing.T) {
	eng, err := New([]*schema.ComputedProperty{
		prop("fullName", nil, fullName),
	})
	require.NoError(t, err)

	batch := []rowan.Entity{
		{"firstName": "John", "lastName": "Doe"},
		{"firstName": "Jane", "lastName": "Roe"},
	}
	eng.EvaluateAll(batch)
	assert.Equal(t, "John Doe", batch[0]["fullName"])
	assert.Equal(t, "Jane Roe", batch[1]["fullName"])
}

func TestUnboundImplementation(t *testing.T) {
	_, err := New([]*schema.ComputedProperty{{Name: "orphan"}})
	require.Error(t, err)
	assert.True(t, rowan.IsConfiguration(err))
}

func TestDuplicateProperty(t *testing.T) {
	_, err := New([]*schema.ComputedProperty{
		prop("a", nil, fullName),
		prop("a", nil, fullName),
	})
	require.Error(t, err)
	assert.True(t, rowan.IsConfiguration(err))
}

func TestEvaluateNilEntity(t *testing.T) {
	eng, err := New([]*schema.ComputedProperty{prop("fullName", nil, fullName)})
	require.NoError(t, err)
	assert.NotPanics(t, func() { eng.Evaluate(nil) })
}
