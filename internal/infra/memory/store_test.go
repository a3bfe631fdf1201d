package memory

import (
	"testing"

	"quiz-engine/internal/app"
	"quiz-engine/internal/infra/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) app.GameRepository {
		return NewStore()
	})
}
