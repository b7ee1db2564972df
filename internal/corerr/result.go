// Package corerr is the fixed result/error vocabulary shared by the
// connection, handler and producer packages. A Result value
// implements error directly, the way the original client's Result enum
// doubles as its own exception type.
package corerr

import (
	"strings"

	"ryanMQ/internal/protocol"
)

type Result int

const (
	ResultOk Result = iota
	ResultUnknownError
	ResultNotConnected
	ResultTimeout
	ResultRetryable
	ResultDisconnected
	ResultAlreadyClosed
	ResultConnectError
	ResultAuthenticationError
	ResultAuthorizationError
	ResultChecksumError
	ResultBrokerMetadataError
	ResultBrokerPersistenceError
	ResultConsumerBusy
	ResultServiceUnitNotReady
	ResultProducerBlockedQuotaExceededError
	ResultProducerBlockedQuotaExceededException
	ResultTopicNotFound
	ResultSubscriptionNotFound
	ResultConsumerNotFound
	ResultUnsupportedVersion
	ResultTooManyLookupRequestException
	ResultTopicTerminated
	ResultProducerBusy
	ResultInvalidTopicName
	ResultIncompatibleSchema
	ResultConsumerAssignError
	ResultTransactionCoordinatorNotFoundError
	ResultInvalidTxnStatusError
	ResultNotAllowedError
	ResultTransactionConflict
	ResultTransactionNotFound
	ResultProducerFenced
	ResultInvalidMessage
	ResultMessageTooBig
	ResultProducerQueueIsFull
	ResultMemoryBufferIsFull
	ResultInterrupted
	ResultCryptoError
)

var names = map[Result]string{
	ResultOk:                                     "Ok",
	ResultUnknownError:                           "UnknownError",
	ResultNotConnected:                           "NotConnected",
	ResultTimeout:                                "Timeout",
	ResultRetryable:                              "Retryable",
	ResultDisconnected:                           "Disconnected",
	ResultAlreadyClosed:                          "AlreadyClosed",
	ResultConnectError:                           "ConnectError",
	ResultAuthenticationError:                    "AuthenticationError",
	ResultAuthorizationError:                     "AuthorizationError",
	ResultChecksumError:                          "ChecksumError",
	ResultBrokerMetadataError:                    "BrokerMetadataError",
	ResultBrokerPersistenceError:                 "BrokerPersistenceError",
	ResultConsumerBusy:                           "ConsumerBusy",
	ResultServiceUnitNotReady:                    "ServiceUnitNotReady",
	ResultProducerBlockedQuotaExceededError:       "ProducerBlockedQuotaExceededError",
	ResultProducerBlockedQuotaExceededException:   "ProducerBlockedQuotaExceededException",
	ResultTopicNotFound:                          "TopicNotFound",
	ResultSubscriptionNotFound:                   "SubscriptionNotFound",
	ResultConsumerNotFound:                       "ConsumerNotFound",
	ResultUnsupportedVersion:                     "UnsupportedVersion",
	ResultTooManyLookupRequestException:          "TooManyLookupRequestException",
	ResultTopicTerminated:                        "TopicTerminated",
	ResultProducerBusy:                           "ProducerBusy",
	ResultInvalidTopicName:                       "InvalidTopicName",
	ResultIncompatibleSchema:                     "IncompatibleSchema",
	ResultConsumerAssignError:                    "ConsumerAssignError",
	ResultTransactionCoordinatorNotFoundError:     "TransactionCoordinatorNotFoundError",
	ResultInvalidTxnStatusError:                  "InvalidTxnStatusError",
	ResultNotAllowedError:                        "NotAllowedError",
	ResultTransactionConflict:                    "TransactionConflict",
	ResultTransactionNotFound:                    "TransactionNotFound",
	ResultProducerFenced:                         "ProducerFenced",
	ResultInvalidMessage:                         "InvalidMessage",
	ResultMessageTooBig:                          "MessageTooBig",
	ResultProducerQueueIsFull:                    "ProducerQueueIsFull",
	ResultMemoryBufferIsFull:                     "MemoryBufferIsFull",
	ResultInterrupted:                            "Interrupted",
	ResultCryptoError:                            "CryptoError",
}

func (r Result) String() string {
	if n, ok := names[r]; ok {
		return n
	}
	return "UnknownError"
}

// Error lets Result be used directly as a Go error, the way the source
// client's Result enum also serves as its exception type.
func (r Result) Error() string {
	return "pulsar: " + r.String()
}

// IsOk reports whether r represents success.
func (r Result) IsOk() bool { return r == ResultOk }

// brokerErrorMap is the fixed total map from broker error codes to
// client result codes.
var brokerErrorMap = map[protocol.ServerError]Result{
	protocol.ErrNone:                                      ResultOk,
	protocol.ErrUnknownError:                               ResultUnknownError,
	protocol.ErrMetadataError:                              ResultBrokerMetadataError,
	protocol.ErrPersistenceError:                           ResultBrokerPersistenceError,
	protocol.ErrAuthenticationError:                        ResultAuthenticationError,
	protocol.ErrAuthorizationError:                         ResultAuthorizationError,
	protocol.ErrConsumerBusy:                               ResultConsumerBusy,
	protocol.ErrServiceNotReady:                            ResultServiceUnitNotReady,
	protocol.ErrProducerBlockedQuotaExceededError:           ResultProducerBlockedQuotaExceededError,
	protocol.ErrProducerBlockedQuotaExceededException:       ResultProducerBlockedQuotaExceededException,
	protocol.ErrTopicNotFound:                              ResultTopicNotFound,
	protocol.ErrSubscriptionNotFound:                       ResultSubscriptionNotFound,
	protocol.ErrConsumerNotFound:                           ResultConsumerNotFound,
	protocol.ErrTooManyRequests:                            ResultTooManyLookupRequestException,
	protocol.ErrTopicTerminated:                            ResultTopicTerminated,
	protocol.ErrProducerBusy:                               ResultProducerBusy,
	protocol.ErrInvalidTopicName:                           ResultInvalidTopicName,
	protocol.ErrIncompatibleSchema:                         ResultIncompatibleSchema,
	protocol.ErrConsumerAssignError:                        ResultConsumerAssignError,
	protocol.ErrTransactionCoordinatorNotFound:              ResultTransactionCoordinatorNotFoundError,
	protocol.ErrInvalidTxnStatus:                            ResultInvalidTxnStatusError,
	protocol.ErrNotAllowedError:                            ResultNotAllowedError,
	protocol.ErrTransactionConflict:                         ResultTransactionConflict,
	protocol.ErrTransactionNotFound:                         ResultTransactionNotFound,
	protocol.ErrProducerFenced:                             ResultProducerFenced,
}

// MapBrokerError implements the fixed total map from broker error code to Result. Unknown codes
// fall back to UnknownError rather than panicking.
func MapBrokerError(code protocol.ServerError) Result {
	if r, ok := brokerErrorMap[code]; ok {
		return r
	}
	return ResultUnknownError
}

// ServiceNotReadyRetryable preserves a fragile substring check carried
// over from an earlier client generation: a ServiceNotReady error
// is retryable unless the broker's message happens to contain the
// string "PulsarServerException".
func ServiceNotReadyRetryable(message string) bool {
	return !strings.Contains(message, "PulsarServerException")
}

// MapBrokerErrorWithMessage is MapBrokerError plus the ServiceNotReady
// retryability override: a ServiceNotReady whose message doesn't carry
// "PulsarServerException" is reported to the pending request as
// Retryable rather than as ServiceUnitNotReady.
func MapBrokerErrorWithMessage(code protocol.ServerError, message string) Result {
	if code == protocol.ErrServiceNotReady && ServiceNotReadyRetryable(message) {
		return ResultRetryable
	}
	return MapBrokerError(code)
}

// ClosesConnection reports whether a broker error, once it has failed
// the pending request, should also force the connection closed so the
// client reconnects to a (potentially different) broker.
func ClosesConnection(code protocol.ServerError) bool {
	return code == protocol.ErrServiceNotReady || code == protocol.ErrTooManyRequests
}
