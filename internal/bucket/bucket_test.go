package bucket

import (
	"testing"

	"github.com/cuemby/thunder/internal/omap"
	"github.com/stretchr/testify/require"
)

func TestCreateAndIsolation(t *testing.T) {
	m := omap.New()
	require.NoError(t, Create(m, Path{"A"}))
	require.NoError(t, Create(m, Path{"B"}))

	require.NoError(t, Put(m, Path{"A"}, []byte("k"), []byte("1")))
	require.NoError(t, Put(m, Path{"B"}, []byte("k"), []byte("2")))

	va, err := Get(m, Path{"A"}, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), va)

	vb, err := Get(m, Path{"B"}, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), vb)

	require.NoError(t, Delete(m, Path{"A"}))
	require.False(t, Exists(m, Path{"A"}))
	require.True(t, Exists(m, Path{"B"}))
	vb2, err := Get(m, Path{"B"}, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), vb2)
}

func TestCreateDuplicateFails(t *testing.T) {
	m := omap.New()
	require.NoError(t, Create(m, Path{"A"}))
	err := Create(m, Path{"A"})
	require.Error(t, err)
}

func TestCreateIfNotExists(t *testing.T) {
	m := omap.New()
	created, err := CreateIfNotExists(m, Path{"A"})
	require.NoError(t, err)
	require.True(t, created)

	created, err = CreateIfNotExists(m, Path{"A"})
	require.NoError(t, err)
	require.False(t, created)
}

func TestNestedBucketRequiresParent(t *testing.T) {
	m := omap.New()
	err := Create(m, Path{"A", "B"})
	require.Error(t, err)

	require.NoError(t, Create(m, Path{"A"}))
	require.NoError(t, Create(m, Path{"A", "B"}))

	require.NoError(t, Put(m, Path{"A", "B"}, []byte("x"), []byte("nested")))
	v, err := Get(m, Path{"A", "B"}, []byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte("nested"), v)

	// Parent bucket's own keyspace is untouched by the child's.
	_, err = Get(m, Path{"A"}, []byte("x"))
	require.Error(t, err)
}

func TestDeleteCascadesToDescendants(t *testing.T) {
	m := omap.New()
	require.NoError(t, Create(m, Path{"A"}))
	require.NoError(t, Create(m, Path{"A", "B"}))
	require.NoError(t, Put(m, Path{"A", "B"}, []byte("x"), []byte("1")))

	require.NoError(t, Delete(m, Path{"A"}))
	require.False(t, Exists(m, Path{"A", "B"}))
}

func TestDeleteCascadesThroughMultipleNestingLevels(t *testing.T) {
	m := omap.New()
	require.NoError(t, Create(m, Path{"A"}))
	require.NoError(t, Create(m, Path{"A", "B"}))
	require.NoError(t, Create(m, Path{"A", "B", "C"}))
	require.NoError(t, Put(m, Path{"A", "B", "C"}, []byte("x"), []byte("1")))

	require.NoError(t, Delete(m, Path{"A"}))
	require.False(t, Exists(m, Path{"A", "B"}))
	require.False(t, Exists(m, Path{"A", "B", "C"}))
	_, err := Get(m, Path{"A", "B", "C"}, []byte("x"))
	require.Error(t, err)
}

func TestDeleteDoesNotTouchUnrelatedSiblingWithSharedNamePrefix(t *testing.T) {
	m := omap.New()
	require.NoError(t, Create(m, Path{"A"}))
	require.NoError(t, Create(m, Path{"AB"}))
	require.NoError(t, Put(m, Path{"AB"}, []byte("k"), []byte("unrelated")))

	require.NoError(t, Delete(m, Path{"A"}))
	require.True(t, Exists(m, Path{"AB"}))
	v, err := Get(m, Path{"AB"}, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("unrelated"), v)
}

func TestDepthLimit(t *testing.T) {
	p := make(Path, MaxDepth+1)
	for i := range p {
		p[i] = "x"
	}
	require.Error(t, p.Validate())
}

func TestAscendStripsPrefix(t *testing.T) {
	m := omap.New()
	require.NoError(t, Create(m, Path{"A"}))
	require.NoError(t, Put(m, Path{"A"}, []byte("b"), []byte("2")))
	require.NoError(t, Put(m, Path{"A"}, []byte("a"), []byte("1")))
	require.NoError(t, Put(m, Path{"A"}, []byte("c"), []byte("3")))

	var keys []string
	require.NoError(t, Ascend(m, Path{"A"}, func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	}))
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestAscendRangeHalfOpen(t *testing.T) {
	m := omap.New()
	require.NoError(t, Create(m, Path{"A"}))
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, Put(m, Path{"A"}, []byte(k), []byte(k)))
	}
	var keys []string
	require.NoError(t, AscendRange(m, Path{"A"}, []byte("b"), []byte("d"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	}))
	require.Equal(t, []string{"b", "c"}, keys)
}

func TestListTopLevelBuckets(t *testing.T) {
	m := omap.New()
	require.NoError(t, Create(m, Path{"A"}))
	require.NoError(t, Create(m, Path{"B"}))
	require.NoError(t, Create(m, Path{"A", "C"}))

	names := List(m)
	require.ElementsMatch(t, []string{"A", "B"}, names)
}

func TestInvalidBucketName(t *testing.T) {
	m := omap.New()
	require.Error(t, Create(m, Path{""}))
	require.Error(t, Create(m, Path{string(make([]byte, MaxNameLen+1))}))
}

func TestRootKeyDisjointFromBucketKeys(t *testing.T) {
	m := omap.New()
	require.NoError(t, Create(m, Path{"A"}))
	require.NoError(t, Put(m, Path{"A"}, []byte("k"), []byte("bucket-value")))
	m.Put(RootKey([]byte("k")), []byte("root-value"))

	bv, err := Get(m, Path{"A"}, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("bucket-value"), bv)

	rv, ok := m.Get(RootKey([]byte("k")))
	require.True(t, ok)
	require.Equal(t, []byte("root-value"), rv)
}
