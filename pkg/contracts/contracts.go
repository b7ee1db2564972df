// Package contracts holds the interfaces the connection core consumes
// but does not implement: authentication, the connection
// pool HandlerBase asks for connections, the consumer push sink, and the
// producer ack/fail sink. This is the public seam a full client builds
// its authentication plugins, lookup service and consumer pipeline
// against; ryanMQ itself only implements the core.
package contracts

import (
	"context"

	"ryanMQ/internal/corerr"
	"ryanMQ/internal/protocol"
)

// ResponseData is what a two-phase PRODUCER_SUCCESS ultimately resolves
// with. Lives here, not in internal/connection,
// so both internal/connection and internal/producer can depend on it
// without a package cycle.
type ResponseData struct {
	ProducerName   string
	LastSequenceId int64
	SchemaVersion  []byte
	TopicEpoch     *uint64
}

// MessageIdData identifies one entry in the log.
type MessageIdData struct {
	LedgerId uint64
	EntryId  uint64
}

// Authenticator supplies the CONNECT command's auth method/data and
// answers AUTH_CHALLENGE round trips.
type Authenticator interface {
	AuthMethodName() string
	GetAuthData(ctx context.Context) ([]byte, error)
	Authenticate(challenge []byte) ([]byte, error)
}

// Connection is the minimal surface HandlerBase needs from whatever
// concrete *connection.ClientConnection the pool hands back, kept as an
// interface so the handler and its tests don't depend on the concrete
// connection package.
type Connection interface {
	SendCommandBytes(frame []byte) error
	Closed() <-chan struct{}
	ID() string

	NextRequestId() uint64
	CreateProducer(cmd *protocol.Command, requestId uint64) (ResponseData, corerr.Result)
	RegisterProducer(id uint64, p ProducerNotifyInterface)
	UnregisterProducer(id uint64)
}

// ConnectionPool is the collaborator HandlerBase.grabCnx asks for a live
// connection to a topic's owning broker; topic lookup and partitioning
// live outside this core.
type ConnectionPool interface {
	GetConnection(ctx context.Context, topic string) (Connection, error)
}

// ConsumerPushInterface receives dispatched MESSAGE/ACTIVE_CONSUMER_CHANGE
// traffic; the consumer's own flow control, ack tracking and dead-letter
// routing are out of scope.
type ConsumerPushInterface interface {
	MessageReceived(conn Connection, ledgerID, entryID uint64, checksumOK bool, brokerEntryMeta []byte, payload []byte)
	ActiveConsumerChanged(active bool)
	DisconnectConsumer(result corerr.Result)
}

// ProducerNotifyInterface is how ClientConnection reports SEND_RECEIPT
// and SEND_ERROR back to the owning producer. A false return
// from either method is a protocol violation and closes the connection.
type ProducerNotifyInterface interface {
	AckReceived(sequenceId uint64, ledgerID, entryID uint64) bool
	RemoveCorruptMessage(sequenceId uint64) bool
	DisconnectProducer(result corerr.Result)
}

// MessageCrypto is the encryption collaborator a ProducerImpl calls into
// when EncryptionEnabled is set; the actual crypto implementation is out
// of scope; only the hook ProducerImpl uses is modeled.
type MessageCrypto interface {
	Encrypt(payload []byte, keyNames []string) ([]byte, map[string][]byte, error)
	AddPublicKeyCipher(keyName string, keyReader func(string) ([]byte, error)) error
}
