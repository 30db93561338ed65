package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rosslabs/ross/internal/log"
)

// Console is a Gateway over stdin/stdout for local development. Each input
// line becomes a message from the local user; sent messages and files are
// printed and kept in memory so FetchMessage and ReadAttachment work.
//
// Two input forms simulate reviewer reactions:
//
//	+emoji msg-N [reply text]   add a reaction to sent message N
//	-emoji msg-N                remove it again
//
// The local user is treated as an admin so the full feedback flow can be
// exercised without a chat platform.
type Console struct {
	in     io.Reader
	out    io.Writer
	logger log.Logger

	mu       sync.Mutex
	nextID   int
	messages map[string]Message
	files    map[string][]byte
}

// ConsoleChannelID is the channel all console traffic uses.
const ConsoleChannelID = "console"

// localUser is the console operator.
var localUser = User{ID: "local", Name: "local", IsAdmin: true}

// NewConsole creates a console gateway reading from in and writing to out.
func NewConsole(in io.Reader, out io.Writer, logger log.Logger) *Console {
	return &Console{
		in:       in,
		out:      out,
		logger:   logger,
		messages: make(map[string]Message),
		files:    make(map[string][]byte),
	}
}

// Run reads input lines and dispatches them to the handler until the
// input ends or ctx is cancelled.
func (c *Console) Run(ctx context.Context, h Handler) error {
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return scanner.Err()
			}
			c.dispatch(ctx, strings.TrimSpace(line), h)
		}
	}
}

func (c *Console) dispatch(ctx context.Context, line string, h Handler) {
	if line == "" {
		return
	}

	if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") {
		if r, add, ok := c.parseReaction(line); ok {
			if add && h.OnReactionAdd != nil {
				h.OnReactionAdd(ctx, r)
			} else if !add && h.OnReactionRemove != nil {
				h.OnReactionRemove(ctx, r)
			}
			return
		}
	}

	if h.OnMessage != nil {
		c.mu.Lock()
		c.nextID++
		ref := MessageRef{ChannelID: ConsoleChannelID, MessageID: "in-" + strconv.Itoa(c.nextID)}
		c.mu.Unlock()

		h.OnMessage(ctx, Message{
			Ref:     ref,
			Author:  localUser,
			Content: line,
		})
	}
}

// parseReaction parses "+emoji msg-N [reply...]" / "-emoji msg-N".
func (c *Console) parseReaction(line string) (Reaction, bool, bool) {
	add := strings.HasPrefix(line, "+")
	fields := strings.Fields(line[1:])
	if len(fields) < 2 {
		return Reaction{}, false, false
	}

	var reply string
	if len(fields) > 2 {
		reply = strings.Join(fields[2:], " ")
	}

	return Reaction{
		Ref:     MessageRef{ChannelID: ConsoleChannelID, MessageID: fields[1]},
		Reactor: localUser,
		Emoji:   fields[0],
		Reply:   reply,
	}, add, true
}

// Send implements Transport.
func (c *Console) Send(_ context.Context, channelID, text string) (MessageRef, error) {
	c.mu.Lock()
	c.nextID++
	ref := MessageRef{ChannelID: channelID, MessageID: "msg-" + strconv.Itoa(c.nextID)}
	c.messages[ref.MessageID] = Message{
		Ref:     ref,
		Author:  User{ID: "ross", Name: "ross", IsBot: true},
		Content: text,
	}
	c.mu.Unlock()

	fmt.Fprintf(c.out, "[%s] %s: %s\n", channelID, ref.MessageID, text)
	return ref, nil
}

// SendFile implements Transport.
func (c *Console) SendFile(_ context.Context, channelID, filename string, content []byte, caption string) (MessageRef, error) {
	c.mu.Lock()
	c.nextID++
	ref := MessageRef{ChannelID: channelID, MessageID: "msg-" + strconv.Itoa(c.nextID)}
	c.files[filename] = content
	c.messages[ref.MessageID] = Message{
		Ref:         ref,
		Author:      User{ID: "ross", Name: "ross", IsBot: true},
		Content:     caption,
		Attachments: []Attachment{{Name: filename, URL: filename}},
	}
	c.mu.Unlock()

	fmt.Fprintf(c.out, "[%s] %s: <file %s> %s\n", channelID, ref.MessageID, filename, caption)
	return ref, nil
}

// Edit implements Transport.
func (c *Console) Edit(_ context.Context, ref MessageRef, text string) error {
	c.mu.Lock()
	if msg, ok := c.messages[ref.MessageID]; ok {
		msg.Content = text
		c.messages[ref.MessageID] = msg
	}
	c.mu.Unlock()

	fmt.Fprintf(c.out, "[%s] %s (edited): %s\n", ref.ChannelID, ref.MessageID, text)
	return nil
}

// Delete implements Transport.
func (c *Console) Delete(_ context.Context, ref MessageRef) error {
	c.mu.Lock()
	delete(c.messages, ref.MessageID)
	c.mu.Unlock()
	return nil
}

// CreateThread implements Transport. The console has no threads; replies
// just land in a derived channel name.
func (c *Console) CreateThread(_ context.Context, ref MessageRef, name string) (string, error) {
	return ref.ChannelID + "/" + name, nil
}

// FetchMessage implements Transport.
func (c *Console) FetchMessage(_ context.Context, ref MessageRef) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.messages[ref.MessageID]
	if !ok {
		return Message{}, fmt.Errorf("console: no message %q", ref.MessageID)
	}
	return msg, nil
}

// ReadAttachment implements Transport.
func (c *Console) ReadAttachment(_ context.Context, att Attachment) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.files[att.Name]
	if !ok {
		return nil, fmt.Errorf("console: no attachment %q", att.Name)
	}
	return content, nil
}
