package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/rosslabs/ross/internal/transport"
)

// SentMessage is one message posted through a FakeTransport.
type SentMessage struct {
	Ref      transport.MessageRef
	Text     string
	Filename string
	Content  []byte
}

// FakeTransport is an in-memory transport.Transport for bot tests. It
// records everything sent and serves fetches and attachment reads from
// messages seeded with AddMessage.
type FakeTransport struct {
	mu       sync.Mutex
	seq      int
	sent     []SentMessage
	edits    map[transport.MessageRef][]string
	deleted  []transport.MessageRef
	threads  map[transport.MessageRef]string
	messages map[transport.MessageRef]transport.Message
	files    map[string][]byte

	// SendErr, when set, fails every outbound call.
	SendErr error
}

// NewFakeTransport creates an empty fake.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		edits:    make(map[transport.MessageRef][]string),
		threads:  make(map[transport.MessageRef]string),
		messages: make(map[transport.MessageRef]transport.Message),
		files:    make(map[string][]byte),
	}
}

// AddMessage seeds a fetchable message, returning its reference.
func (f *FakeTransport) AddMessage(msg transport.Message) transport.MessageRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.Ref.MessageID == "" {
		f.seq++
		msg.Ref.MessageID = fmt.Sprintf("msg-%d", f.seq)
	}
	f.messages[msg.Ref] = msg
	return msg.Ref
}

// AddAttachment seeds attachment content retrievable by URL.
func (f *FakeTransport) AddAttachment(url string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[url] = content
}

// Sent returns a copy of everything posted so far.
func (f *FakeTransport) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.sent...)
}

// Edits returns the edit history of one message.
func (f *FakeTransport) Edits(ref transport.MessageRef) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.edits[ref]...)
}

// Deleted returns the references deleted so far.
func (f *FakeTransport) Deleted() []transport.MessageRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.MessageRef(nil), f.deleted...)
}

func (f *FakeTransport) Send(_ context.Context, channelID, text string) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return transport.MessageRef{}, f.SendErr
	}
	f.seq++
	ref := transport.MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("msg-%d", f.seq)}
	f.sent = append(f.sent, SentMessage{Ref: ref, Text: text})
	f.messages[ref] = transport.Message{
		Ref:     ref,
		Author:  transport.User{ID: "bot", Name: "ross", IsBot: true},
		Content: text,
	}
	return ref, nil
}

func (f *FakeTransport) SendFile(_ context.Context, channelID, filename string, content []byte, caption string) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return transport.MessageRef{}, f.SendErr
	}
	f.seq++
	ref := transport.MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("msg-%d", f.seq)}
	f.sent = append(f.sent, SentMessage{Ref: ref, Text: caption, Filename: filename, Content: content})

	url := "attachment://" + ref.MessageID + "/" + filename
	f.files[url] = content
	f.messages[ref] = transport.Message{
		Ref:         ref,
		Author:      transport.User{ID: "bot", Name: "ross", IsBot: true},
		Content:     caption,
		Attachments: []transport.Attachment{{Name: filename, URL: url}},
	}
	return ref, nil
}

func (f *FakeTransport) Edit(_ context.Context, ref transport.MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	if _, ok := f.messages[ref]; !ok {
		return fmt.Errorf("edit: unknown message %s", ref.MessageID)
	}
	f.edits[ref] = append(f.edits[ref], text)
	msg := f.messages[ref]
	msg.Content = text
	f.messages[ref] = msg
	return nil
}

func (f *FakeTransport) Delete(_ context.Context, ref transport.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.messages[ref]; !ok {
		return fmt.Errorf("delete: unknown message %s", ref.MessageID)
	}
	delete(f.messages, ref)
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *FakeTransport) CreateThread(_ context.Context, ref transport.MessageRef, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return "", f.SendErr
	}
	threadID := "thread:" + ref.MessageID + ":" + name
	f.threads[ref] = threadID
	return threadID, nil
}

func (f *FakeTransport) FetchMessage(_ context.Context, ref transport.MessageRef) (transport.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[ref]
	if !ok {
		return transport.Message{}, fmt.Errorf("fetch: unknown message %s", ref.MessageID)
	}
	return msg, nil
}

func (f *FakeTransport) ReadAttachment(_ context.Context, att transport.Attachment) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[att.URL]
	if !ok {
		return nil, fmt.Errorf("read attachment: unknown url %s", att.URL)
	}
	return append([]byte(nil), content...), nil
}
