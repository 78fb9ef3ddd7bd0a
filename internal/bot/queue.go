package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// chatQueue runs handle on messages one at a time per chat, in arrival order.
// Different chats are handled concurrently. A chat's worker exits once its
// queue is empty.
type chatQueue struct {
	handle func(ctx context.Context, message *tgbotapi.Message)

	mu      sync.Mutex
	pending map[int64][]*tgbotapi.Message
	wg      sync.WaitGroup
}

func newChatQueue(handle func(ctx context.Context, message *tgbotapi.Message)) *chatQueue {
	return &chatQueue{
		handle:  handle,
		pending: make(map[int64][]*tgbotapi.Message),
	}
}

func (q *chatQueue) push(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	q.mu.Lock()
	queued, running := q.pending[chatID]
	q.pending[chatID] = append(queued, message)
	q.wg.Add(1)
	q.mu.Unlock()

	if !running {
		go q.drain(ctx, chatID)
	}
}

// drain owns chatID while its entry exists in pending.
func (q *chatQueue) drain(ctx context.Context, chatID int64) {
	for {
		q.mu.Lock()
		queued := q.pending[chatID]
		if len(queued) == 0 {
			delete(q.pending, chatID)
			q.mu.Unlock()
			return
		}
		message := queued[0]
		q.pending[chatID] = queued[1:]
		q.mu.Unlock()

		q.handle(ctx, message)
		q.wg.Done()
	}
}

// wait blocks until every pushed message has been handled.
func (q *chatQueue) wait() {
	q.wg.Wait()
}
