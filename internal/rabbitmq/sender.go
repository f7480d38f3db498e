package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/beamline-mq/beamline-go/contracts"
)

// confirmedSender publishes one message at a time on a borrowed channel and
// waits for the broker's verdict. Broker outcomes surface as the contract
// sentinels so callers never see AMQP frames:
//
//   - nack                  -> contracts.ErrSendNacked
//   - unroutable return     -> contracts.ErrSendReturned
//   - confirmation timeout  -> contracts.ErrSendTimeout
//   - channel torn down     -> amqp.ErrClosed
//
// A channel that missed its confirmation is closed before the error is
// returned. The confirmation may still arrive later and sit in the buffer;
// closing keeps it from being read as the verdict for the next publish.
type confirmedSender struct {
	pc      *PooledChannel
	timeout time.Duration
}

func (s *confirmedSender) Send(ctx context.Context, msg *contracts.WireMessage) error {
	tag := s.pc.nextTag
	s.pc.nextTag++

	err := s.pc.ch.PublishWithContext(ctx, msg.Exchange, msg.RoutingKey, true, false, amqp.Publishing{
		MessageId:     msg.MessageID,
		CorrelationId: msg.CorrelationID,
		ContentType:   msg.ContentType,
		Timestamp:     msg.Timestamp,
		Headers:       amqp.Table(msg.Headers),
		DeliveryMode:  amqp.Persistent,
		Body:          msg.Body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s/%s: %w", msg.Exchange, msg.RoutingKey, err)
	}

	return s.await(ctx, tag, msg.MessageID)
}

// await blocks until the broker settles the publish identified by tag. A
// mandatory return arrives before its confirmation, so a seen return is
// remembered and reported once the confirmation lands.
func (s *confirmedSender) await(ctx context.Context, tag uint64, messageID string) error {
	deadline := time.NewTimer(s.timeout)
	defer deadline.Stop()

	returned := false
	for {
		select {
		case confirm, ok := <-s.pc.confirms:
			if !ok {
				return amqp.ErrClosed
			}
			if confirm.DeliveryTag != tag {
				continue
			}
			if returned {
				return contracts.ErrSendReturned
			}
			if !confirm.Ack {
				return contracts.ErrSendNacked
			}
			// The return for this tag can still be sitting in the
			// buffer behind the ack.
			select {
			case ret := <-s.pc.returns:
				if ret.MessageId == messageID {
					return contracts.ErrSendReturned
				}
			default:
			}
			return nil
		case ret := <-s.pc.returns:
			if ret.MessageId == messageID {
				returned = true
			}
		case <-ctx.Done():
			s.pc.ch.Close()
			return ctx.Err()
		case <-deadline.C:
			s.pc.ch.Close()
			return contracts.ErrSendTimeout
		}
	}
}
