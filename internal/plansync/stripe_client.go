package plansync

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/price"
	"github.com/stripe/stripe-go/v84/product"

	pkgstripe "github.com/kolabz/kolabz-backend/pkg/stripe"
)

// StripeCatalogClient exposes the subset of Stripe operations required by plan sync.
type StripeCatalogClient interface {
	ProductCreate(ctx context.Context, params *stripe.ProductParams) (*stripe.Product, error)
	ProductUpdate(ctx context.Context, id string, params *stripe.ProductParams) (*stripe.Product, error)
	PriceCreate(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error)
	PriceDeactivate(ctx context.Context, id string) (*stripe.Price, error)
}

type stripeClientWrapper struct{}

// NewStripeClient wraps the provided Stripe client so the sync service can be tested.
func NewStripeClient(api *pkgstripe.Client) StripeCatalogClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{}
}

func (w *stripeClientWrapper) ProductCreate(ctx context.Context, params *stripe.ProductParams) (*stripe.Product, error) {
	if params != nil {
		params.Context = ctx
	}
	return product.New(params)
}

func (w *stripeClientWrapper) ProductUpdate(ctx context.Context, id string, params *stripe.ProductParams) (*stripe.Product, error) {
	if params != nil {
		params.Context = ctx
	}
	return product.Update(id, params)
}

func (w *stripeClientWrapper) PriceCreate(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error) {
	if params != nil {
		params.Context = ctx
	}
	return price.New(params)
}

func (w *stripeClientWrapper) PriceDeactivate(ctx context.Context, id string) (*stripe.Price, error) {
	params := &stripe.PriceParams{Active: stripe.Bool(false)}
	params.Context = ctx
	return price.Update(id, params)
}
