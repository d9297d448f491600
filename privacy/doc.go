// Package privacy provides a store middleware enforcing privacy policies
// before actions reach the storage.
//
// # Core Concepts
//
//   - Policy: query and mutation rule chains.
//   - Rule: a function returning Allow, Deny or Skip.
//   - Viewer: the authenticated user, carried by the context.Context.
//
// # Guarding a Store
//
//	store := anansi.NewStore(
//	    anansi.WithStorage(storage),
//	    anansi.WithMiddleware(privacy.Middleware(
//	        privacy.WithDefault(privacy.Policy{
//	            Mutation: privacy.MutationPolicy{privacy.DenyIfNoViewer()},
//	        }),
//	        privacy.For("Document", privacy.Policy{
//	            Query: privacy.QueryPolicy{
//	                privacy.TenantQueryRule(),
//	                privacy.TenantRule("tenant_id"),
//	            },
//	            Mutation: privacy.MutationPolicy{
//	                privacy.HasRole("admin"),
//	                privacy.IsOwner("owner_id"),
//	                privacy.AlwaysDenyRule(),
//	            },
//	        }),
//	    )),
//	)
//
// # Rule Evaluation
//
// Rules of a chain are evaluated in order until one returns a final
// decision. Allow grants access and Deny rejects it; Skip moves on. A
// schema policy is evaluated before the default policy, and a chain
// where every rule skips allows the action, so chains usually end with
// AlwaysDenyRule.
//
// Query rules may narrow the query they evaluate. TenantRule and IsOwner
// add a predicate on the tenant or owner field, so reads only return the
// viewer's rows. Collection saves and deletes are evaluated per record;
// a delete selecting its rows by predicate is narrowed like a query.
//
// # Viewer
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{
//	    UserID:   "user-123",
//	    Roles:    []string{"admin"},
//	    TenantID: "tenant-abc",
//	})
//
// System tasks bypass every policy with a decision in the context:
//
//	ctx = privacy.DecisionContext(ctx, privacy.Allow)
//
// # Errors
//
// Denied actions return a *DenyError. It satisfies
// anansi.IsPrivacyError and errors.Is(err, privacy.Deny).
package privacy
