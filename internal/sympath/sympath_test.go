package sympath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "go method expression",
			in:   "(*k8s.io/kubernetes/pkg/kubelet.Kubelet).Run",
			want: "k8s.io.kubernetes.pkg.kubelet.Kubelet.Run",
		},
		{
			name: "cpp scope operator",
			in:   "net::http::Server::serve",
			want: "net.http.Server.serve",
		},
		{
			name: "plain identifier",
			in:   "main",
			want: "main",
		},
		{
			name: "generic brackets stripped",
			in:   "List[T].append",
			want: "ListT.append",
		},
		{
			name: "mixed separators collapse",
			in:   "a/b.c:d",
			want: "a.b.c.d",
		},
		{
			name: "empty tokens dropped",
			in:   "a..b//c",
			want: "a.b.c",
		},
		{
			name: "empty input",
			in:   "",
			want: Unknown,
		},
		{
			name: "punctuation only",
			in:   "***",
			want: Unknown,
		},
		{
			name: "separators only",
			in:   "://.",
			want: Unknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"(*k8s.io/kubernetes/pkg/kubelet.Kubelet).Run",
		"net::http::Server::serve",
		"main",
		"",
		"a..b//c",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestTokens(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, Tokens("a.b.c"))
	require.Equal(t, []string{"ab"}, Tokens("a-b"))
	require.Nil(t, Tokens("()"))
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Split("a.b.c"))
	assert.Equal(t, []string{"main"}, Split("main"))
	assert.Nil(t, Split(""))
}

func TestIsAncestor(t *testing.T) {
	assert.True(t, IsAncestor("a.b", "a.b.c"))
	assert.True(t, IsAncestor("a.b", "a.b"))
	assert.False(t, IsAncestor("a.b", "a.bc"))
	assert.False(t, IsAncestor("a.b.c", "a.b"))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("handler", "handler"))
	assert.Equal(t, 0.0, Similarity("", "handler"))

	// Close strings score higher than unrelated ones.
	close := Similarity("handleRequest", "handleRequests")
	far := Similarity("handleRequest", "shutdown")
	assert.Greater(t, close, far)
	assert.Greater(t, close, 0.5)
	assert.Less(t, far, 0.3)

	// Symmetric.
	assert.InDelta(t, Similarity("alpha", "alphabet"), Similarity("alphabet", "alpha"), 1e-12)

	// Case-insensitive.
	assert.Equal(t, 1.0, Similarity("Kubelet", "Kubelet"))
	a := Similarity("kubelet", "KUBELET")
	assert.Greater(t, a, 0.99)
}
