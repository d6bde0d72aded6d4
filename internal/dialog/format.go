package dialog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mbrandao/opchat/internal/models"
)

// Response texts rendered by the orchestrator. Kept as pure functions
// over structured data so they are trivially testable.

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func formatOrderConfirmation(d *models.OrderDraft) string {
	var sb strings.Builder
	sb.WriteString("Confirm order creation:\n")
	sb.WriteString(fmt.Sprintf("  Client: %s\n", orDash(d.ClientName)))
	if d.OrderNumber != nil {
		sb.WriteString(fmt.Sprintf("  Order number: %d\n", *d.OrderNumber))
	}
	if d.OrderDate != nil {
		sb.WriteString(fmt.Sprintf("  Order date: %s\n", *d.OrderDate))
	}
	sb.WriteString(fmt.Sprintf("  Delivery: %s\n", orDash(d.DeliveryDate)))
	if d.TotalPrice != nil {
		sb.WriteString(fmt.Sprintf("  Total: %.2f\n", *d.TotalPrice))
	}
	if d.Tax != nil {
		sb.WriteString(fmt.Sprintf("  Tax: %.2f\n", *d.Tax))
	}
	sb.WriteString("Create this order? (yes/no)")
	return sb.String()
}

func formatPartsConfirmation(orderCode string, parts []models.PartDraft) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Confirm adding %d part(s) to order %s:\n", len(parts), orderCode))
	for _, p := range parts {
		sb.WriteString(fmt.Sprintf("  - %dx %s", p.Quantity, p.Name))
		if p.UnitPrice > 0 {
			sb.WriteString(fmt.Sprintf(" @ %.2f", p.UnitPrice))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Register these parts? (yes/no)")
	return sb.String()
}

func formatDeleteConfirmation(candidates []models.Candidate) string {
	if len(candidates) == 1 {
		c := candidates[0]
		if c.Kind == models.CandidateOrder && c.Order != nil {
			return fmt.Sprintf("You are about to delete order %s (client %s). This cannot be undone. Confirm? (yes/no)",
				c.Order.Code, c.Order.ClientName)
		}
		if c.Part != nil {
			return fmt.Sprintf("You are about to delete part %q from order %s. This cannot be undone. Confirm? (yes/no)",
				c.Part.Name, c.Part.OrderCode)
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are about to delete %d records:\n", len(candidates)))
	for _, c := range candidates {
		sb.WriteString("  - " + c.Label() + "\n")
	}
	sb.WriteString("Delete all of them? (yes/no)")
	return sb.String()
}

func formatFieldChanges(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s -> %v", k, fields[k]))
	}
	return strings.Join(parts, ", ")
}

func formatUpdateConfirmation(candidates []models.Candidate) string {
	if len(candidates) == 1 {
		c := candidates[0]
		return fmt.Sprintf("Apply to %s: %s. Confirm? (yes/no)", c.Label(), formatFieldChanges(c.Fields))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Apply %s to %d records:\n", formatFieldChanges(candidates[0].Fields), len(candidates)))
	for _, c := range candidates {
		sb.WriteString("  - " + c.Label() + "\n")
	}
	sb.WriteString("Update all of them? (yes/no)")
	return sb.String()
}

func formatSearchResults(query string, orders []*models.Order, parts []*models.Part) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s) for %q:\n", len(orders)+len(parts), query))
	if len(orders) > 0 {
		sb.WriteString("Orders:\n")
		for _, o := range orders {
			sb.WriteString(fmt.Sprintf("  - %s | client %s | delivery %s | %s\n",
				o.Code, o.ClientName, o.DeliveryDate, o.Status))
		}
	}
	if len(parts) > 0 {
		sb.WriteString("Parts:\n")
		for _, p := range parts {
			sb.WriteString(fmt.Sprintf("  - %s | order %s | %d/%d produced | %s\n",
				p.Name, p.OrderCode, p.Produced, p.Quantity, p.Status))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatMissingFields(missing []string) string {
	return "I still need: " + strings.Join(missing, ", ") + "."
}

const (
	msgDidNotUnderstand = "Sorry, I didn't get that. Could you rephrase?"
	msgConfirmOrCancel  = "Please answer yes to confirm or no to cancel."
	msgCancelled        = "Operation cancelled."
	msgRepoFailure      = "Something went wrong talking to the record store. The pending operation was discarded; please try again."
	msgInternalError    = "Internal error; the pending operation was discarded."
	msgNarrowQuery      = "I found both orders and parts matching that. Please be more specific about which one you mean."
)
