package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lojinha/ecommerce-backend/catalog"
)

var oneHundred = decimal.NewFromInt(100)

// PriceLine calcula o total de uma linha: quantidade × preço do produto,
// menos o desconto do cupom quando aplicável. O preço calculado fica
// gravado no item; mudanças posteriores de preço do produto não
// reprecificam itens existentes.
func PriceLine(product *catalog.Product, quantity int, coupon *Coupon, now time.Time) (decimal.Decimal, error) {
	subtotal := product.Price.Mul(decimal.NewFromInt(int64(quantity)))
	if coupon == nil {
		return subtotal, nil
	}

	if err := coupon.AppliesTo(product.ID, now); err != nil {
		return decimal.Zero, err
	}

	discount := subtotal.Mul(coupon.Discount).Div(oneHundred).Round(2)
	return subtotal.Sub(discount), nil
}
