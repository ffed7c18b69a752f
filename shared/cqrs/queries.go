package cqrs

// CurrentUserQuery resolves the caller behind a bearer token.
type CurrentUserQuery struct {
	Token string
}

// InvokeUserQuery is the inter-service lookup by access key.
type InvokeUserQuery struct {
	AccessKey string
}
