package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/textfilter"
	"go.uber.org/zap"
)

const (
	ReplyUnavailable = "AI service temporarily unavailable. Please try again."
	ReplyNoAnswer    = "I couldn’t find relevant information. Please ask in a different way."

	defaultHistorySize  = 1024
	defaultHistoryTTL   = 24 * time.Hour
	defaultHistoryTurns = 20
	defaultTimeout      = 60 * time.Second
	maxTitleRunes       = 50
)

var ErrEmptyMessage = errors.New("empty message")

type Retriever interface {
	Retrieve(ctx context.Context, query, documentID string, topK int) ([]string, error)
}

type Config struct {
	HistorySize      int
	HistoryTTL       time.Duration
	HistoryTurns     int
	MaxContextTokens int
	TopK             int
	Timeout          time.Duration
}

type Request struct {
	OwnerID    string
	ChatID     string
	DocumentID string
	Message    string
}

type Reply struct {
	ChatID   string   `json:"chat_id"`
	Reply    string   `json:"reply"`
	Sources  []string `json:"sources"`
	Degraded bool     `json:"degraded"`
}

// Summary describes one chat of an owner. Title is the opening message cut
// to 50 runes.
type Summary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Ctime int64  `json:"ctime"`
}

type session struct {
	ownerID string
	chatID  string
	title   string
	ctime   int64
	seq     uint64
	turns   []Turn
}

// Service answers chat turns, grounding them in a document when one is
// selected. Conversation history lives in memory only.
type Service struct {
	retriever Retriever
	generator ai.IGenerator
	counter   TokenCounter
	cfg       Config

	mu      sync.Mutex
	seq     uint64
	history *expirable.LRU[string, *session]
}

func NewService(retriever Retriever, generator ai.IGenerator, counter TokenCounter, cfg Config) *Service {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = defaultHistoryTTL
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultHistoryTurns
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if counter == nil {
		counter = NewWordCounter()
	}
	return &Service{
		retriever: retriever,
		generator: generator,
		counter:   counter,
		cfg:       cfg,
		history:   expirable.NewLRU[string, *session](cfg.HistorySize, nil, cfg.HistoryTTL),
	}
}

// Chat never fails because of the model or the retriever: those failures
// produce a fallback reply flagged as degraded.
func (s *Service) Chat(ctx context.Context, req Request) (*Reply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	chatID := strings.TrimSpace(req.ChatID)
	if chatID == "" {
		chatID = uuid.NewString()
	}
	logger := logutil.GetLogger(ctx).With(zap.String("chat_id", chatID), zap.String("document_id", req.DocumentID))
	out := &Reply{ChatID: chatID, Sources: []string{}}

	if req.DocumentID != "" && s.retriever != nil {
		chunks, err := s.retriever.Retrieve(ctx, message, req.DocumentID, s.cfg.TopK)
		if err != nil {
			logger.Warn("retrieve context failed, answering without document", zap.Error(err))
			out.Degraded = true
		} else {
			out.Sources = chunks
		}
	}

	prompt := BuildPrompt(PromptInput{
		Message: message,
		Context: out.Sources,
		History: s.History(req.OwnerID, chatID),
	}, s.counter, s.cfg.MaxContextTokens)

	reply, err := s.generate(ctx, prompt)
	switch {
	case err != nil:
		logger.Error("generate reply failed", zap.Error(err))
		out.Reply = ReplyUnavailable
		out.Degraded = true
	case strings.TrimSpace(reply) == "":
		out.Reply = ReplyNoAnswer
	default:
		out.Reply = textfilter.StripMarkdown(reply)
	}
	s.appendHistory(req.OwnerID, chatID, Turn{Role: RoleUser, Content: message}, Turn{Role: RoleAssistant, Content: out.Reply})
	logger.Info("chat turn finished", zap.Int("sources", len(out.Sources)), zap.Bool("degraded", out.Degraded))
	return out, nil
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	if s.generator == nil {
		return "", ai.ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.generator.Generate(ctx, prompt)
}

// History returns a copy of the stored turns of a chat, oldest first.
// Chats are private to their owner.
func (s *Service) History(ownerID, chatID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.history.Get(historyKey(ownerID, chatID))
	if !ok {
		return []Turn{}
	}
	return append([]Turn{}, sess.turns...)
}

// ListChats returns the live chats of an owner, most recently started first.
func (s *Service) ListChats(ownerID string) []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := make([]*session, 0)
	for _, sess := range s.history.Values() {
		if sess.ownerID == ownerID {
			sessions = append(sessions, sess)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].seq > sessions[j].seq })
	out := make([]Summary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, Summary{ID: sess.chatID, Title: sess.title, Ctime: sess.ctime})
	}
	return out
}

func (s *Service) ClearHistory(ownerID, chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Remove(historyKey(ownerID, chatID))
}

func historyKey(ownerID, chatID string) string {
	return ownerID + "\x00" + chatID
}

func chatTitle(message string) string {
	runes := []rune(message)
	if len(runes) > maxTitleRunes {
		runes = runes[:maxTitleRunes]
	}
	return string(runes)
}

// appendHistory stores copies so readers never see a slice that is being
// extended. The first turn of a chat fixes its title and ctime.
func (s *Service) appendHistory(ownerID, chatID string, turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := historyKey(ownerID, chatID)
	next := &session{ownerID: ownerID, chatID: chatID}
	if cur, ok := s.history.Get(key); ok {
		*next = *cur
	} else if len(turns) > 0 {
		s.seq++
		next.seq = s.seq
		next.title = chatTitle(turns[0].Content)
		next.ctime = time.Now().Unix()
	}
	merged := append(append([]Turn(nil), next.turns...), turns...)
	if len(merged) > s.cfg.HistoryTurns {
		merged = merged[len(merged)-s.cfg.HistoryTurns:]
	}
	next.turns = merged
	s.history.Add(key, next)
}
