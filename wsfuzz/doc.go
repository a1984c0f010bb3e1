// Package wsfuzz implements a template driven WebSocket fuzzer.
//
// A message file lists the WebSocket messages to fuzz, one per line. Every
// occurrence of FUZZ_VALUE is replaced with a payload from the payload file.
// Lines starting with PRE_MESSAGE are sent unmodified, in order, before the
// next fuzzed message, and are replayed on every attempt for that message.
// Each attempt opens its own connection, sends, then collects responses until
// the receive timeout elapses. Responses containing an indicator substring are
// flagged for manual review.
//
// Basic usage:
//
//	import "github.com/wsfuzz/wsfuzz/wsfuzz"
//
//	target, err := wsfuzz.NewTarget("https://example.com", "/socket")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	set, err := wsfuzz.LoadTemplates("messages.txt")
//	if err != nil {
//		log.Fatal(err)
//	}
//	payloads, err := wsfuzz.LoadCorpus("payloads.txt", wsfuzz.JSONEscape)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	campaign := wsfuzz.NewCampaign(target, set, payloads, wsfuzz.DefaultCampaignOption())
//	summary, err := campaign.Run(context.Background())

package wsfuzz
