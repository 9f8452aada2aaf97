// Package billingpolicy holds billing business rules consumed by the
// subscription provisioning path. Keeping them here, away from tenant
// creation itself, makes each rule independently testable.
package billingpolicy

// RequiresPayment reports whether creating another community requires a
// paid subscription. The first community an owner creates is free;
// every subsequent one must be paid before it is provisioned.
func RequiresPayment(ownerExistingTenantCount int) bool {
	return ownerExistingTenantCount >= 1
}
