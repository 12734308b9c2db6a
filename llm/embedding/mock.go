package embedding

import (
	"context"
	"crypto/sha256"
)

// MockProvider 是确定性的离线嵌入实现：对文本取 SHA-256，
// 将摘要字节线性缩放到 [-1, 1]，再平铺到目标维度。
// 相同文本永远得到相同向量，适合无凭据环境与测试。
type MockProvider struct {
	dims int
}

// NewMock creates a deterministic embedder producing dims-dimensional vectors.
func NewMock(dims int) *MockProvider {
	if dims <= 0 {
		dims = 1536
	}
	return &MockProvider{dims: dims}
}

func (m *MockProvider) Name() string    { return "mock" }
func (m *MockProvider) Dimensions() int { return m.dims }

func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest := sha256.Sum256([]byte(text))

	vec := make([]float32, m.dims)
	for i := 0; i < m.dims; i++ {
		b := digest[i%len(digest)]
		vec[i] = float32(b)/255.0*2 - 1
	}
	return vec, nil
}

func (m *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
