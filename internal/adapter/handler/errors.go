package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type ErrorResponse struct {
	Kind      string            `json:"kind"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	ProductID int64             `json:"product_id,omitempty"`
	Available *int64            `json:"available,omitempty"`
	Requested int64             `json:"requested,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func httpStatus(kind string) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindInsufficientStock, domain.KindDuplicateRequest:
		return http.StatusConflict
	case domain.KindStorageFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func grpcCode(kind string) codes.Code {
	switch kind {
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindInvalidInput:
		return codes.InvalidArgument
	case domain.KindInsufficientStock:
		return codes.FailedPrecondition
	case domain.KindDuplicateRequest:
		return codes.AlreadyExists
	case domain.KindStorageFailure:
		return codes.Unavailable
	}
	return codes.Internal
}

func newErrorResponse(err error) ErrorResponse {
	kind := domain.KindOf(err)
	resp := ErrorResponse{
		Kind:      kind,
		Message:   err.Error(),
		Retryable: domain.IsRetryable(err),
	}
	// storage details stay in the log
	switch kind {
	case domain.KindStorageFailure:
		resp.Message = "storage temporarily unavailable"
	case domain.KindUnknown:
		resp.Message = "internal error"
	}

	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		available := insufficient.Available
		resp.ProductID = insufficient.ProductID
		resp.Available = &available
		resp.Requested = insufficient.Requested
	}
	return resp
}

func writeError(c *gin.Context, err error) {
	resp := newErrorResponse(err)
	if resp.Kind == domain.KindStorageFailure || resp.Kind == domain.KindUnknown {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(httpStatus(resp.Kind), resp)
}

// toStatus converts a ledger error into a gRPC status. Insufficient stock
// carries the amounts as a Struct detail.
func toStatus(err error) error {
	resp := newErrorResponse(err)
	st := status.New(grpcCode(resp.Kind), resp.Message)

	if resp.Available != nil {
		detail, derr := structpb.NewStruct(map[string]any{
			"product_id": resp.ProductID,
			"available":  *resp.Available,
			"requested":  resp.Requested,
		})
		if derr == nil {
			if withDetails, werr := st.WithDetails(detail); werr == nil {
				st = withDetails
			}
		}
	}
	return st.Err()
}

type remoteError struct {
	msg  string
	kind error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.kind }

// fromStatus maps a gRPC error returned by the ledger service back onto the
// ledger error kinds.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return &remoteError{msg: st.Message(), kind: domain.ErrNotFound}
	case codes.InvalidArgument:
		return &remoteError{msg: st.Message(), kind: domain.ErrInvalidInput}
	case codes.AlreadyExists:
		return &remoteError{msg: st.Message(), kind: domain.ErrDuplicateRequest}
	case codes.Unavailable:
		return &domain.StorageError{Op: "remote call", Err: errors.New(st.Message())}
	case codes.FailedPrecondition:
		for _, d := range st.Details() {
			detail, ok := d.(*structpb.Struct)
			if !ok {
				continue
			}
			fields := detail.GetFields()
			return &domain.InsufficientStockError{
				ProductID: int64(fields["product_id"].GetNumberValue()),
				Available: int64(fields["available"].GetNumberValue()),
				Requested: int64(fields["requested"].GetNumberValue()),
			}
		}
		return &remoteError{msg: st.Message(), kind: domain.ErrInsufficientStock}
	}
	return err
}
