// Package onnxembedder implements embed.Embedder against a local
// sentence-embedding ONNX model, the same "small local model, no
// network round-trip" shape spec.md treats as an external oracle for
// persona matching. Tokenization is daulet/tokenizers (a Rust
// tokenizers binding); inference is yalue/onnxruntime_go.
package onnxembedder

import (
	"context"
	"fmt"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"
)

// embeddingDims matches the sentence-embedding dimensionality of
// common MiniLM-class models codegate ships for persona matching.
const embeddingDims = 384

const defaultMaxTokens = 256

// Config points the embedder at its model artifacts.
type Config struct {
	// SharedLibraryPath is the onnxruntime shared library's location.
	// Left empty to use onnxruntime_go's platform default search.
	SharedLibraryPath string
	ModelPath         string
	TokenizerPath     string
	// MaxTokens truncates encoded input before inference; 0 uses
	// defaultMaxTokens.
	MaxTokens int
}

// Embedder implements embed.Embedder over a loaded ONNX session. The
// underlying onnxruntime session is not safe for concurrent Run calls,
// so Embed serializes all inference through its own mutex.
type Embedder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	maxTokens int
}

// New loads the tokenizer and ONNX model described by cfg. The caller
// must call Close when done to release the native session and
// tokenizer handles.
func New(cfg Config) (*Embedder, error) {
	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("onnxembedder: initializing onnxruntime: %w", err)
	}

	tk, err := tokenizers.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("onnxembedder: loading tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"sentence_embedding"},
		nil,
	)
	if err != nil {
		tk.Close()
		return nil, fmt.Errorf("onnxembedder: loading model: %w", err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	return &Embedder{session: session, tokenizer: tk, maxTokens: maxTokens}, nil
}

// Close releases the native onnxruntime session and tokenizer.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.tokenizer != nil {
		e.tokenizer.Close()
		e.tokenizer = nil
	}
	return nil
}

// Embed implements embed.Embedder, running each text through the
// tokenizer and model in turn.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.embedOne(text)
		if err != nil {
			return nil, fmt.Errorf("onnxembedder: embedding text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Embedder) embedOne(text string) ([]float32, error) {
	ids, _ := e.tokenizer.Encode(text, true)
	if len(ids) > e.maxTokens {
		ids = ids[:e.maxTokens]
	}
	if len(ids) == 0 {
		ids = []uint32{0}
	}

	inputIDs := make([]int64, len(ids))
	attentionMask := make([]int64, len(ids))
	for i, id := range ids {
		inputIDs[i] = int64(id)
		attentionMask[i] = 1
	}

	shape := ort.NewShape(1, int64(len(ids)))
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("building input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("building attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, embeddingDims))
	if err != nil {
		return nil, fmt.Errorf("allocating output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	inputs := []ort.ArbitraryTensor{idsTensor, maskTensor}
	outputs := []ort.ArbitraryTensor{outputTensor}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("running inference: %w", err)
	}

	data := outputTensor.GetData()
	vec := make([]float32, len(data))
	copy(vec, data)
	return vec, nil
}
