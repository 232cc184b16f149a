package ledger

import (
	"bytes"
	"fmt"
	"sort"

	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/google/uuid"
)

// Line is a quantity of one product inside a batch.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
}

// normalizeLines validates every line, merges duplicates per product and orders the
// result by product id so concurrent batches lock rows in the same sequence.
func normalizeLines(lines []Line) ([]Line, error) {
	merged := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if err := validateLine(line.ProductID, line.Quantity); err != nil {
			return nil, err
		}
		merged[line.ProductID] += line.Quantity
	}

	out := make([]Line, 0, len(merged))
	for productID, qty := range merged {
		out = append(out, Line{ProductID: productID, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ProductID[:], out[j].ProductID[:]) < 0
	})
	return out, nil
}

func validateLine(productID uuid.UUID, qty int) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be positive, got %d", qty)).
			WithDetails(map[string]any{"product_id": productID.String(), "quantity": qty})
	}
	return nil
}
