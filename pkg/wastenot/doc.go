// Package wastenot recognizes food ingredients in photos and recommends
// recipes that use them.
//
// Quick start:
//
//	w, err := wastenot.New(wastenot.WithModelDir("models/"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	rec, _ := w.RecommendFiles(ctx, "fridge/egg.jpg", "fridge/tomato.jpg")
//	for _, m := range rec.Recipes {
//	    fmt.Println(m.Score, m.Recipe.Name)
//	}
//
// A WasteNot instance is safe for concurrent use. Create once, reuse across
// requests.
package wastenot
