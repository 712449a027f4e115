// Package source talks to the paginated HR API: it obtains a bearer token
// with the client-credentials grant and reads an entity page by page.
//
// Pages are addressed by continuation URLs. The first request is built from
// the API base URL and entity name and carries $format=json plus the
// optional $select; every later request uses the continuation returned by
// the previous page verbatim. Record arrays and continuations are located
// with gjson paths, so both {"data": {"results", "nextPage"}} and the OData
// {"d": {"results", "__next"}} shapes are supported.
//
// A 429 response is surfaced as a rate-limit error carrying its Retry-After
// wait, which the retry package sleeps through without consuming an attempt.
package source
