// Package anansi is a schema driven record mapper.
//
// A Schema describes an entity type: its fields, indexes, references to
// single records and collectors of many. Model is a record of a schema
// that tracks committed state and pending changes, and Collection is a
// lazy, refinable set of records backed by a Store or by a static slice.
//
// Lookups and mutations are expressed as Actions dispatched through a
// Store. Every store owns a Pipeline of Middleware in front of its
// Storage, so caching, metrics, privacy rules and soft deletion can be
// layered without touching the backend:
//
//	st := anansi.NewStore(
//	    anansi.WithStorage(postgres.New(postgres.Config{Database: "app"})),
//	    anansi.WithMiddleware(
//	        metrics.Middleware(reg),
//	        cache.Middleware(cache.NewRedis(rdb)),
//	    ),
//	)
//	ctx = anansi.SetCurrentStore(anansi.WithStoreStack(ctx), st)
//
//	users := Users.Select(anansi.Where(anansi.Q("age").GreaterThan(30)), anansi.OrderBy("-id"))
//	first, err := users.First(ctx)
//
// Predicates are built with Q and combined with And and Or. Options such
// as ordering, paging, locale and includes travel in a Context, which
// merges with the context a collection inherits from.
package anansi
