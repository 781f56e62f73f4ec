// Package rarity computes how rare a short post or dream is among comparable
// content, as a percentile and a tier (elite to popular), using embedding
// similarity under a geographic scope.
//
//	client, _ := rarity.New(
//	    rarity.WithValkey("localhost:6379", ""),
//	    rarity.WithOpenAI(os.Getenv("OPENAI_API_KEY"), "", "text-embedding-3-small"),
//	)
//	defer client.Close()
//
//	res, _ := client.Submit(ctx, rarity.Submission{
//	    Text:  "Ran a half marathon before breakfast",
//	    Scope: rarity.ScopeState,
//	    State: "Texas",
//	})
//	fmt.Println(res.Tier, res.DisplayText) // elite Only you!
//
// Without an embedding provider the client still works: vectors are derived
// locally from the normalized text, so only equivalent wordings match.
package rarity
