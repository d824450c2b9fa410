package cloudqueue

import (
	"context"
	"encoding/base64"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/atsika/poolbridge/pkg/scheduler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// QueueDepth bounds the in-process relay; overflow drops the newest command
// and logs (spec §5 "Shared resources": bounded queues, drop-newest).
const QueueDepth = 32

// Relay is the durable command relay's contract: enqueue a command from the
// IP side, drain whatever has accumulated for the scheduler's inbound
// channel (spec §4.12).
type Relay interface {
	Enqueue(ctx context.Context, cmd scheduler.Command) error
	Drain(ctx context.Context) ([]scheduler.Command, error)
}

// ChanRelay is the default, non-durable relay: an in-process bounded
// channel. This is what IngressFromIP producers (spec §5) feed directly
// when no cloud deployment is configured. The Link TX queue is separate
// (pkg/link's own packet channel); the RS-485 hot path never goes through
// any relay.
type ChanRelay struct {
	ch  chan scheduler.Command
	log *logrus.Entry
}

func NewChanRelay(log *logrus.Entry) *ChanRelay {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ChanRelay{ch: make(chan scheduler.Command, QueueDepth), log: log.WithField("component", "chanqueue")}
}

func (r *ChanRelay) Enqueue(_ context.Context, cmd scheduler.Command) error {
	select {
	case r.ch <- cmd:
	default:
		r.log.WithField("topic", cmd.Topic).Warn("command relay full, dropping newest command")
	}
	return nil
}

func (r *ChanRelay) Drain(ctx context.Context) ([]scheduler.Command, error) {
	var out []scheduler.Command
	for {
		select {
		case cmd := <-r.ch:
			out = append(out, cmd)
		default:
			return out, nil
		}
	}
}

// Chan exposes the underlying channel for direct use as a scheduler inbound
// queue (scheduler.New takes a <-chan Command).
func (r *ChanRelay) Chan() <-chan scheduler.Command { return r.ch }

// AzureRelay durably relays commands through an Azure Storage queue, each
// message a self-contained Noise-sealed envelope (spec §4.12), adapted from
// the teacher's azqueue.go queueTransport.
type AzureRelay struct {
	queue        *azqueue.QueueClient
	responderPub []byte // nil on the consumer side, which holds keys instead
	keys         ResponderKeys
	isConsumer   bool
	log          *logrus.Entry
}

// NewAzureRelayProducer builds a relay that only seals and enqueues,
// addressed to the consumer identified by responderPub (the consumer's
// ResponderKeys.PublicKey, supplied by the caller).
func NewAzureRelayProducer(queue *azqueue.QueueClient, responderPub []byte, log *logrus.Entry) *AzureRelay {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &AzureRelay{queue: queue, responderPub: responderPub, log: log.WithField("component", "cloudqueue")}
}

// NewAzureRelayConsumer builds a relay that only drains and decrypts, using
// its own long-lived ResponderKeys.
func NewAzureRelayConsumer(queue *azqueue.QueueClient, keys ResponderKeys, log *logrus.Entry) *AzureRelay {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &AzureRelay{queue: queue, keys: keys, isConsumer: true, log: log.WithField("component", "cloudqueue")}
}

// envelopeMsg pairs a command with a compact, sortable correlation ID (xid,
// not the HTTP surface's uuid) so a single message can be traced across the
// enqueue/dequeue boundary in logs.
type envelopeMsg struct {
	ID  string            `json:"id"`
	Cmd scheduler.Command `json:"cmd"`
}

func (r *AzureRelay) Enqueue(ctx context.Context, cmd scheduler.Command) error {
	id := xid.New().String()
	plaintext, err := json.Marshal(envelopeMsg{ID: id, Cmd: cmd})
	if err != nil {
		return err
	}
	sealed, err := seal(r.responderPub, plaintext)
	if err != nil {
		return err
	}
	_, err = r.queue.EnqueueMessage(ctx, base64.StdEncoding.EncodeToString(sealed), nil)
	if err != nil {
		return err
	}
	r.log.WithField("relay_id", id).Debug("command sealed and enqueued")
	return nil
}

func (r *AzureRelay) Drain(ctx context.Context) ([]scheduler.Command, error) {
	resp, err := r.queue.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{NumberOfMessages: to.Ptr[int32](32)})
	if err != nil {
		return nil, err
	}
	var out []scheduler.Command
	for _, msg := range resp.Messages {
		if msg.MessageText == nil {
			continue
		}
		envelope, err := base64.StdEncoding.DecodeString(*msg.MessageText)
		if err != nil {
			r.log.WithError(err).Warn("dropping malformed relay message")
			continue
		}
		plaintext, err := unseal(r.keys, envelope)
		if err != nil {
			r.log.WithError(err).Warn("dropping relay message that failed to decrypt")
			continue
		}
		var env envelopeMsg
		if err := json.Unmarshal(plaintext, &env); err != nil {
			r.log.WithError(err).Warn("dropping relay message with unparseable payload")
			continue
		}
		r.log.WithField("relay_id", env.ID).Debug("command decrypted and dequeued")
		out = append(out, env.Cmd)
		_, _ = r.queue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil)
	}
	return out, nil
}
