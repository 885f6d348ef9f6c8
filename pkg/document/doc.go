// Package document is a registry client whose requests go through a
// rate-limited dispatcher.
//
// Each CreateDocument call becomes one task, so however many goroutines
// create documents, the registry receives them one at a time and no faster
// than the dispatcher allows:
//
//	d, _ := throttle.NewPerUnit(ctx, time.Second, 5)
//	defer d.Close()
//
//	client := document.NewClient(d, document.WithLogger(logger))
//	err := client.CreateDocument(url, &document.Document{
//	    DocID:          "42",
//	    DocType:        "LP_INTRODUCE_GOODS",
//	    ProductionDate: document.NewDate(2024, time.March, 1),
//	}, signature)
//
// CreateDocument returns once the request is queued. Registry responses are
// logged; a non-200 answer is reported to the dispatcher as a *StatusError.
package document
