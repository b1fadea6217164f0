// Package client is the Go SDK for the chainledger HTTP API.
//
// It covers the chart of accounts, the draft → posted → voided entry
// lifecycle, financial reports and chain verification:
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	draft, err := c.CreateDraft(ctx, client.DraftRequest{
//	    Date:        "2026-04-01",
//	    Description: "Cash sale",
//	    Lines: []client.Line{
//	        {Account: "1110", Debit: money.MustParse("25000")},
//	        {Account: "4100", Credit: money.MustParse("21186")},
//	        {Account: "2120", Credit: money.MustParse("3814")},
//	    },
//	})
//	posted, err := c.Post(ctx, draft.ID)
//
// # Errors
//
// Non-2xx responses are returned as *APIError. Validation failures carry
// the server's problem list; use errors.As to inspect them:
//
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
//	    for _, p := range apiErr.Problems {
//	        fmt.Println(p.Line, p.Message)
//	    }
//	}
//
// A 503 means the chain tail moved while posting and the call may be
// retried; APIError.Retryable reports this.
package client
