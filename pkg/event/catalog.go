package event

import (
	"sort"
	"strings"
	"sync"
)

// BulkEventType is the synthetic wrapper whose payload carries several sub-events.
const BulkEventType = "BulkBusinessEvent"

// Descriptor describes one domain event type known to the application.
type Descriptor struct {
	Type     string
	Category string
	// Abstract types are only ever raised through a concrete subtype.
	Abstract bool
	// NoExternalEvent marks types that are never delivered outside the process.
	NoExternalEvent bool
}

// Catalog is the set of domain event types the application can raise.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]Descriptor
}

func NewCatalog(descriptors ...Descriptor) *Catalog {
	c := &Catalog{types: make(map[string]Descriptor)}
	c.Register(descriptors...)
	return c
}

// Register adds or replaces descriptors by type name.
func (c *Catalog) Register(descriptors ...Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range descriptors {
		if d.Type == "" {
			continue
		}
		c.types[d.Type] = d
	}
}

func (c *Catalog) Lookup(eventType string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.types[eventType]
	return d, ok
}

// ExternalTypes returns, sorted, every concrete type that is eligible for external
// delivery: not abstract, not opted out and not the bulk wrapper.
func (c *Catalog) ExternalTypes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.types))
	for name, d := range c.types {
		if d.Abstract || d.NoExternalEvent || name == BulkEventType {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// DefaultCatalog is the lending platform's built-in event catalog.
func DefaultCatalog() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = NewCatalog(builtinDescriptors()...)
	})
	return defaultCatalog
}

var builtinTypes = map[string][]string{
	"Client": {
		"ClientActivateBusinessEvent", "ClientCreateBusinessEvent", "ClientRejectBusinessEvent",
	},
	"Group": {
		"CentersCreateBusinessEvent", "GroupsCreateBusinessEvent",
	},
	"Loan": {
		"LoanAcceptTransferBusinessEvent", "LoanAddChargeBusinessEvent", "LoanApplyOverdueChargeBusinessEvent",
		"LoanApprovedBusinessEvent", "LoanBalanceChangedBusinessEvent", "LoanChargeAdjustmentPostBusinessEvent",
		"LoanChargeAdjustmentPreBusinessEvent", "LoanChargePaymentPostBusinessEvent", "LoanChargePaymentPreBusinessEvent",
		"LoanChargeRefundBusinessEvent", "LoanCloseAsRescheduleBusinessEvent", "LoanCloseBusinessEvent",
		"LoanCreatedBusinessEvent", "LoanCreditBalanceRefundPostBusinessEvent", "LoanCreditBalanceRefundPreBusinessEvent",
		"LoanDeleteChargeBusinessEvent", "LoanDelinquencyRangeChangeBusinessEvent", "LoanDisbursalBusinessEvent",
		"LoanForeClosurePostBusinessEvent", "LoanForeClosurePreBusinessEvent", "LoanInitiateTransferBusinessEvent",
		"LoanInterestRecalculationBusinessEvent", "LoanReassignOfficerBusinessEvent", "LoanRefundPostBusinessEvent",
		"LoanRefundPreBusinessEvent", "LoanRejectTransferBusinessEvent", "LoanRejectedBusinessEvent",
		"LoanRemoveOfficerBusinessEvent", "LoanRepaymentDueBusinessEvent", "LoanRepaymentOverdueBusinessEvent",
		"LoanRescheduledDueCalendarChangeBusinessEvent", "LoanRescheduledDueHolidayBusinessEvent",
		"LoanScheduleVariationsAddedBusinessEvent", "LoanScheduleVariationsDeletedBusinessEvent",
		"LoanStatusChangedBusinessEvent", "LoanUndoApprovalBusinessEvent", "LoanUndoDisbursalBusinessEvent",
		"LoanUndoLastDisbursalBusinessEvent", "LoanUndoWrittenOffBusinessEvent", "LoanUpdateChargeBusinessEvent",
		"LoanUpdateDisbursementDataBusinessEvent", "LoanWaiveChargeBusinessEvent", "LoanWaiveChargeUndoBusinessEvent",
		"LoanWithdrawTransferBusinessEvent", "LoanWrittenOffPostBusinessEvent", "LoanWrittenOffPreBusinessEvent",
	},
	"LoanTransaction": {
		"LoanAdjustTransactionBusinessEvent", "LoanChargebackTransactionBusinessEvent",
		"LoanDisbursalTransactionBusinessEvent", "LoanWaiveInterestBusinessEvent",
		"LoanTransactionGoodwillCreditPostBusinessEvent", "LoanTransactionGoodwillCreditPreBusinessEvent",
		"LoanTransactionMakeRepaymentPostBusinessEvent", "LoanTransactionMakeRepaymentPreBusinessEvent",
		"LoanTransactionMerchantIssuedRefundPostBusinessEvent", "LoanTransactionMerchantIssuedRefundPreBusinessEvent",
		"LoanTransactionPayoutRefundPostBusinessEvent", "LoanTransactionPayoutRefundPreBusinessEvent",
		"LoanTransactionRecoveryPaymentPostBusinessEvent", "LoanTransactionRecoveryPaymentPreBusinessEvent",
	},
	"LoanProduct": {
		"LoanProductCreateBusinessEvent",
	},
	"SavingsAccount": {
		"FixedDepositAccountCreateBusinessEvent", "RecurringDepositAccountCreateBusinessEvent",
		"SavingsActivateBusinessEvent", "SavingsApproveBusinessEvent", "SavingsCloseBusinessEvent",
		"SavingsCreateBusinessEvent", "SavingsRejectBusinessEvent", "SavingsPostInterestBusinessEvent",
	},
	"SavingsAccountTransaction": {
		"SavingsDepositBusinessEvent", "SavingsWithdrawalBusinessEvent",
	},
	"ShareAccount": {
		"ShareAccountApproveBusinessEvent", "ShareAccountCreateBusinessEvent",
	},
	"ShareProduct": {
		"ShareProductDividentsCreateBusinessEvent",
	},
}

func builtinDescriptors() []Descriptor {
	var out []Descriptor
	for category, types := range builtinTypes {
		for _, t := range types {
			out = append(out, Descriptor{Type: t, Category: category})
		}
	}

	out = append(out,
		Descriptor{Type: "LoanBusinessEvent", Category: "Loan", Abstract: true},
		Descriptor{Type: "LoanTransactionBusinessEvent", Category: "LoanTransaction", Abstract: true},
		Descriptor{Type: "SavingsBusinessEvent", Category: "SavingsAccount", Abstract: true},
		Descriptor{Type: "LoanAccountsStayedLockedBusinessEvent", Category: "Loan", NoExternalEvent: true},
		Descriptor{Type: "LoanCOBBusinessStepEvent", Category: "Loan", NoExternalEvent: true},
		Descriptor{Type: BulkEventType, Category: "Bulk"},
	)
	return out
}

// CategoryOf guesses a category from a type name when the catalog has no entry.
func CategoryOf(c *Catalog, eventType string) string {
	if d, ok := c.Lookup(eventType); ok {
		return d.Category
	}
	return strings.TrimSuffix(eventType, "BusinessEvent")
}
