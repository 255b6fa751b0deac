package memstore

import (
	"testing"

	"workflowai/internal/store"
	"workflowai/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}
