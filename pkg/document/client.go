package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jzx17/gothrottle/pkg/throttle"
	"github.com/jzx17/gothrottle/pkg/types"
	"golang.org/x/sync/errgroup"
)

// maxLoggedBody bounds how much of a response body ends up in the logs
const maxLoggedBody = 64 << 10

// ErrInvalidRequest indicates CreateDocument was called with missing arguments
var ErrInvalidRequest = errors.New("invalid document request")

// StatusError is the task failure for a registry response other than 200 OK
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return fmt.Sprintf("registry responded with status %d", e.StatusCode)
}

// Client creates documents in a remote registry. Every request is a task on
// the dispatcher, so the registry sees no more than the dispatcher's rate.
type Client struct {
	dispatcher types.Submitter
	http       *http.Client
	logger     *slog.Logger
	producers  int
}

// NewClient creates a client submitting its requests to dispatcher
func NewClient(dispatcher types.Submitter, opts ...Option) *Client {
	c := &Client{
		dispatcher: dispatcher,
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		producers:  4,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "document"))
	return c
}

// CreateDocument queues a request creating doc at url and returns without
// waiting for it. Only submission errors are returned; the outcome of the
// request is logged when the dispatcher runs it.
func (c *Client) CreateDocument(url string, doc *Document, signature string) error {
	if url == "" {
		return fmt.Errorf("%w: url is empty", ErrInvalidRequest)
	}
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidRequest)
	}

	fn := func(ctx context.Context) error {
		return c.post(ctx, url, doc, signature)
	}

	var task types.Task
	if doc.DocID != "" {
		task = throttle.NewBasicTaskWithID("document:"+doc.DocID, fn)
	} else {
		task = throttle.NewBasicTask(fn)
	}

	if err := c.dispatcher.Submit(task); err != nil {
		return fmt.Errorf("submit document: %w", err)
	}
	return nil
}

// CreateDocuments queues every document in docs from concurrent producers.
// Documents are not guaranteed to run in slice order. The first submission
// error stops the remaining producers and is returned.
func (c *Client) CreateDocuments(ctx context.Context, url string, docs []*Document, signature string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.producers)

	for _, doc := range docs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return c.CreateDocument(url, doc, signature)
		})
	}

	return g.Wait()
}

// post sends one document and logs the registry's answer
func (c *Client) post(ctx context.Context, url string, doc *Document, signature string) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Signature", signature)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("document rejected",
			slog.String("doc_id", doc.DocID),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.logger.Info("document created",
		slog.String("doc_id", doc.DocID),
		slog.String("body", string(body)),
	)
	return nil
}
