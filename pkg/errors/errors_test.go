package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(CodeDependency, cause, "calling gateway")

	require.ErrorIs(t, err, cause)
	require.Equal(t, CodeDependency, err.Code())
	require.Equal(t, "DEPENDENCY_ERROR: calling gateway", err.Error())
}

func TestAsUnwrapsNestedError(t *testing.T) {
	inner := New(CodeInsufficientStock, "no stock")
	wrapped := fmt.Errorf("create order: %w", inner)

	typed := As(wrapped)
	require.NotNil(t, typed)
	require.Equal(t, CodeInsufficientStock, typed.Code())
	require.True(t, IsCode(wrapped, CodeInsufficientStock))
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_ELSE"))
	require.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
}

func TestInsufficientStockNamesProduct(t *testing.T) {
	err := InsufficientStock("prod-1", 3, 1)

	details, ok := err.Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, "prod-1", details["product_id"])
	require.Equal(t, 3, details["requested"])
	require.Equal(t, 1, details["available"])
}
