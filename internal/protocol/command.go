// Package protocol implements the framing, command envelope and message
// metadata layer used by the connection core.
// The actual wire schema of a Pulsar BaseCommand is assumed pre-existing
// and is generated from a .proto file we don't have
// access to here; Command below is a self-contained stand-in that
// preserves the framing contract (the thing the rest of the core and the
// tests actually depend on) without requiring protoc codegen.
package protocol

import (
	"bytes"
	"encoding/gob"
)

type CommandType int32

const (
	TypeConnect CommandType = iota
	TypeConnected
	TypePing
	TypePong
	TypeSend
	TypeSendReceipt
	TypeSendError
	TypeSuccess
	TypeError
	TypeLookup
	TypeLookupResponse
	TypePartitionedMetadata
	TypePartitionedMetadataResponse
	TypeProducer
	TypeProducerSuccess
	TypeCloseProducer
	TypeCloseConsumer
	TypeMessage
	TypeAuthChallenge
	TypeAuthResponse
	TypeConsumerStats
	TypeConsumerStatsResponse
	TypeActiveConsumerChange
	TypeGetLastMessageId
	TypeGetLastMessageIdResponse
	TypeGetTopicsOfNamespace
	TypeGetTopicsOfNamespaceResponse
	TypeGetSchema
	TypeGetSchemaResponse
	TypeAckResponse
)

func (t CommandType) String() string {
	names := [...]string{
		"CONNECT", "CONNECTED", "PING", "PONG", "SEND", "SEND_RECEIPT",
		"SEND_ERROR", "SUCCESS", "ERROR", "LOOKUP", "LOOKUP_RESPONSE",
		"PARTITIONED_METADATA", "PARTITIONED_METADATA_RESPONSE", "PRODUCER",
		"PRODUCER_SUCCESS", "CLOSE_PRODUCER", "CLOSE_CONSUMER", "MESSAGE",
		"AUTH_CHALLENGE", "AUTH_RESPONSE", "CONSUMER_STATS",
		"CONSUMER_STATS_RESPONSE", "ACTIVE_CONSUMER_CHANGE",
		"GET_LAST_MESSAGE_ID", "GET_LAST_MESSAGE_ID_RESPONSE",
		"GET_TOPICS_OF_NAMESPACE", "GET_TOPICS_OF_NAMESPACE_RESPONSE",
		"GET_SCHEMA", "GET_SCHEMA_RESPONSE", "ACK_RESPONSE",
	}
	if int(t) < 0 || int(t) >= len(names) {
		return "UNKNOWN"
	}
	return names[t]
}

// ServerError mirrors the broker's fixed error-code enumeration. Only
// the subset the connection core needs to map is modeled.
type ServerError int32

const (
	ErrNone ServerError = iota
	ErrUnknownError
	ErrMetadataError
	ErrPersistenceError
	ErrAuthenticationError
	ErrAuthorizationError
	ErrConsumerBusy
	ErrServiceNotReady
	ErrProducerBlockedQuotaExceededError
	ErrProducerBlockedQuotaExceededException
	ErrTopicNotFound
	ErrSubscriptionNotFound
	ErrConsumerNotFound
	ErrTooManyRequests
	ErrTopicTerminated
	ErrProducerBusy
	ErrInvalidTopicName
	ErrIncompatibleSchema
	ErrConsumerAssignError
	ErrTransactionCoordinatorNotFound
	ErrInvalidTxnStatus
	ErrNotAllowedError
	ErrTransactionConflict
	ErrTransactionNotFound
	ErrProducerFenced
)

// Command is the discriminated envelope carried by every frame. Only the
// pointer matching Type is expected to be non-nil; this mirrors the
// oneof-like shape of the real BaseCommand proto without requiring a
// generated union type.
type Command struct {
	Type CommandType

	Connect                        *CommandConnect
	Connected                      *CommandConnected
	Ping                           *CommandPing
	Pong                           *CommandPong
	Send                           *CommandSend
	SendReceipt                    *CommandSendReceipt
	SendError                     *CommandSendError
	Success                        *CommandSuccess
	Error                          *CommandError
	Lookup                         *CommandLookup
	LookupResponse                 *CommandLookupResponse
	PartitionedMetadata            *CommandPartitionedMetadata
	PartitionedMetadataResponse    *CommandPartitionedMetadataResponse
	Producer                       *CommandProducer
	ProducerSuccess                *CommandProducerSuccess
	CloseProducer                  *CommandCloseProducer
	CloseConsumer                  *CommandCloseConsumer
	Message                        *CommandMessage
	AuthChallenge                  *CommandAuthChallenge
	AuthResponse                   *CommandAuthResponse
	ConsumerStats                  *CommandConsumerStats
	ConsumerStatsResponse          *CommandConsumerStatsResponse
	ActiveConsumerChange           *CommandActiveConsumerChange
	GetLastMessageId               *CommandGetLastMessageId
	GetLastMessageIdResponse       *CommandGetLastMessageIdResponse
	GetTopicsOfNamespace           *CommandGetTopicsOfNamespace
	GetTopicsOfNamespaceResponse   *CommandGetTopicsOfNamespaceResponse
	GetSchema                      *CommandGetSchema
	GetSchemaResponse              *CommandGetSchemaResponse
	AckResponse                    *CommandAckResponse
}

type CommandConnect struct {
	ProtocolVersion  int32
	ClientVersion    string
	AuthMethodName   string
	AuthData         []byte
	ProxyToBrokerURL string
}

type CommandConnected struct {
	ServerVersion   string
	ProtocolVersion int32
	MaxMessageSize  int32 // -1 means "not present"
}

type CommandPing struct{}
type CommandPong struct{}

type CommandSend struct {
	ProducerId   uint64
	SequenceId   uint64
	NumMessages  int32
}

type CommandSendReceipt struct {
	ProducerId uint64
	SequenceId uint64
	LedgerId   uint64
	EntryId    uint64
}

type CommandSendError struct {
	ProducerId uint64
	SequenceId uint64
	Error      ServerError
	Message    string
}

type CommandSuccess struct {
	RequestId uint64
}

type CommandError struct {
	RequestId uint64
	Error     ServerError
	Message   string
}

type LookupResponseType int32

const (
	LookupConnect LookupResponseType = iota
	LookupRedirect
	LookupFailed
)

type CommandLookup struct {
	RequestId      uint64
	Topic          string
	Authoritative  bool
	ListenerName   string
}

type CommandLookupResponse struct {
	RequestId            uint64
	Response             LookupResponseType
	BrokerServiceURL      string
	BrokerServiceURLTLS   string
	Authoritative         bool
	ProxyThroughServiceURL bool
	Error                 ServerError
	Message               string
}

type CommandPartitionedMetadata struct {
	RequestId uint64
	Topic     string
}

type CommandPartitionedMetadataResponse struct {
	RequestId  uint64
	Partitions uint32
	Error      ServerError
	Message    string
}

type CommandProducer struct {
	RequestId                uint64
	ProducerId                uint64
	Topic                     string
	ProducerName              string
	UserProvidedProducerName  bool
	Encrypted                 bool
	Properties                map[string]string
	ProducerAccessMode        int32
	TopicEpoch                *uint64
	InitialSubscriptionName   string
	LazyStartPartitionedProducers bool
}

type CommandProducerSuccess struct {
	RequestId       uint64
	ProducerName    string
	LastSequenceId  int64
	SchemaVersion   []byte
	TopicEpoch      *uint64
	ProducerReady   bool
}

type CommandCloseProducer struct {
	ProducerId uint64
	RequestId  uint64
}

type CommandCloseConsumer struct {
	ConsumerId uint64
	RequestId  uint64
}

type CommandMessage struct {
	ConsumerId uint64
	LedgerId   uint64
	EntryId    uint64
	RedeliveryCount uint32
}

type CommandAuthChallenge struct {
	Challenge []byte
}

type CommandAuthResponse struct {
	Response []byte
}

type CommandConsumerStats struct {
	RequestId  uint64
	ConsumerId uint64
}

type CommandConsumerStatsResponse struct {
	RequestId uint64
	Error     ServerError
	Message   string
}

type CommandActiveConsumerChange struct {
	ConsumerId uint64
	IsActive   bool
}

type CommandGetLastMessageId struct {
	RequestId  uint64
	ConsumerId uint64
}

type CommandGetLastMessageIdResponse struct {
	RequestId uint64
	LedgerId  uint64
	EntryId   uint64
}

type CommandGetTopicsOfNamespace struct {
	RequestId uint64
	Namespace string
}

type CommandGetTopicsOfNamespaceResponse struct {
	RequestId uint64
	Topics    []string
}

type CommandGetSchema struct {
	RequestId uint64
	Topic     string
}

type CommandGetSchemaResponse struct {
	RequestId     uint64
	SchemaVersion []byte
	Error         ServerError
	Message       string
}

type CommandAckResponse struct {
	ConsumerId uint64
	RequestId  uint64
	Error      ServerError
	Message    string
}

// MarshalCommand serializes a Command into its wire representation.
// encoding/gob is used as the envelope's internal codec: the actual
// BaseCommand wire schema is out of scope, and what the rest
// of the core and the tests depend on is the outer framing contract
// (sizes, checksum placement), not these particular bytes.
func MarshalCommand(cmd *Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalCommand is the inverse of MarshalCommand.
func UnmarshalCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}
