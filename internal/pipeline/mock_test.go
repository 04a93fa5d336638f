package pipeline

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/medcode-cli/internal/llm"
	"github.com/sells-group/medcode-cli/internal/model"
)

// --- Model Mock ---

type mockModel struct {
	mock.Mock
	name string
}

func newMockModel(name string) *mockModel { return &mockModel{name: name} }

func (m *mockModel) Name() string { return m.name }

func (m *mockModel) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*llm.Completion), args.Error(1)
	}
	return nil, args.Error(1)
}

// reply returns a completion holding text.
func reply(text string) *llm.Completion {
	return &llm.Completion{Text: text}
}

// phase matches requests by their Phase label.
func phase(p string) any {
	return mock.MatchedBy(func(r llm.Request) bool { return r.Phase == p })
}

// --- Resolver Mock ---

type mockResolver struct{ mock.Mock }

func (m *mockResolver) Fetch(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

// --- In-memory code store ---

type memStore struct {
	data  []byte
	saves int
	logs  []model.PerformanceLog
}

func (s *memStore) LoadCodes(context.Context) (*model.CodeBook, error) {
	b := model.NewCodeBook()
	if len(s.data) == 0 {
		return b, nil
	}
	return b, json.Unmarshal(s.data, b)
}

func (s *memStore) SaveCodes(_ context.Context, b *model.CodeBook) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	s.data = data
	s.saves++
	return nil
}

func (s *memStore) AppendPerformanceLog(_ context.Context, l model.PerformanceLog) error {
	s.logs = append(s.logs, l)
	return nil
}

// verificationReply wraps a JSON body in the verification markers.
func verificationReply(prose, body string) *llm.Completion {
	return reply(prose + "\n" + VerificationStart + "\n" + body + "\n" + VerificationEnd + "\n")
}

func options(texts ...string) []model.Option {
	out := make([]model.Option, len(texts))
	for i, t := range texts {
		out[i] = model.Option{Letter: string(rune('A' + i)), Text: t}
	}
	return out
}
