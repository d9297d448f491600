// Package edge provides fluent builders for relationships between anansi
// schemas.
//
// # Reference
//
// A reference is a to-one link resolved through a local foreign key field:
//
//	field.Integer("user_id").RefersTo("User.id"),
//	edge.Reference("user", "User").Source("user_id"),
//
// # Collector
//
// A collector is a to-many link yielding a Collection. Source names the
// field on the target model that holds the owner's key:
//
//	edge.Collector("comments", "Comment").Source("user_id")
//
// Many-to-many links go through a join model. Source is then the join
// field pointing at the owner and Target the join field pointing at the
// target model:
//
//	edge.Collector("groups", "Group").
//	    Through("GroupUser").
//	    Source("user_id").
//	    Target("group_id")
//
// Target models are registered schema names resolved on first access, so
// schemas may refer to each other in any declaration order.
package edge
