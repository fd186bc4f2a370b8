// Package httpapi is the JSON HTTP surface of the riskauth server. It maps requests to
// goRiskAuth.Engine calls and engine errors to status codes; it holds no auth logic.
package httpapi
