// Package domain holds the storefront value types shared by the cart, checkout,
// backend clients and HTTP handlers. Types mirror the JSON documents exchanged with
// the auth, catalog and billing services.
package domain
