package authz

// defaultPolicies check principal.grantedActions (populated from scope mapping)
// rather than scope names, so custom scope mappings need no custom policies.
// The admin action implies every other action.
const defaultPolicies = `
permit(
  principal,
  action == SCM::Server::Action::"read",
  resource
) when {
  principal.grantedActions.contains("read")
};

permit(
  principal,
  action == SCM::Server::Action::"write",
  resource
) when {
  principal.grantedActions.contains("write")
};

permit(
  principal,
  action,
  resource
) when {
  principal.grantedActions.contains("admin")
};
`
