package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/domain"
	"github.com/tallyhq/tally/internal/ui"
)

var saleCmd = &cobra.Command{
	Use:   "sale",
	Short: "Record and list sales",
}

var (
	saleProduct  string
	saleCustomer string
	saleQty      float64
	salePrice    float64
	salePaid     float64
	saleFlush    bool
)

var saleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a sale of one product",
	Long: `Records a single-line sale, decrements the product's stock, and appends
the matching stock movement. An unpaid remainder is debited to the
customer's balance and ledger.`,
	Run: func(cmd *cobra.Command, args []string) {
		if saleProduct == "" || saleQty <= 0 {
			fatal("--product and a positive --qty are required")
		}

		a, err := openApp(false)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		product, ok, err := a.shop.Products.Get(saleProduct)
		if err != nil {
			fatal("%v", err)
		}
		if !ok {
			fatal("unknown product %q", saleProduct)
		}

		price := salePrice
		if price == 0 {
			price = product.Price
		}
		total := price * saleQty
		paid := salePaid
		if !cmd.Flags().Changed("paid") {
			paid = total
		}

		now := time.Now().UTC()
		sale := domain.Sale{
			ID:         domain.NewID("sale"),
			CustomerID: saleCustomer,
			Items:      []domain.SaleItem{{ProductID: product.ID, Quantity: saleQty, UnitPrice: price}},
			Total:      total,
			Paid:       paid,
			At:         now,
		}
		if err := a.shop.Sales.Upsert(sale); err != nil {
			fatal("%v", err)
		}

		product.Stock -= saleQty
		product.UpdatedAt = now
		if err := a.shop.Products.Upsert(product); err != nil {
			fatal("%v", err)
		}
		if err := a.shop.Movements.Upsert(domain.Movement{
			ID:        domain.NewID("mov"),
			ProductID: product.ID,
			Kind:      "out",
			Quantity:  saleQty,
			Note:      "sale " + sale.ID,
			At:        now,
		}); err != nil {
			fatal("%v", err)
		}

		if owed := total - paid; owed > 0 && saleCustomer != "" {
			if err := recordDebt(a.shop, saleCustomer, owed, sale.ID, now); err != nil {
				fatal("%v", err)
			}
		}

		fmt.Printf("%s %.2f x %s = %.2f (paid %.2f)  %s\n",
			ui.RenderSuccess("Sold"), saleQty, product.Name, total, paid, ui.RenderMuted(sale.ID))
		if product.MinStock > 0 && product.Stock < product.MinStock {
			fmt.Println(ui.RenderWarn(fmt.Sprintf("Stock of %s is down to %.2f", product.Name, product.Stock)))
		}

		maybeFlush(a, saleFlush)
	},
}

var saleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sales, newest last",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(false)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		sales, err := a.shop.Sales.List()
		if err != nil {
			fatal("%v", err)
		}
		if len(sales) == 0 {
			fmt.Println(ui.RenderMuted("No sales."))
			return
		}

		fmt.Println(ui.RenderHeader(fmt.Sprintf("%-19s %10s %10s  %s", "AT", "TOTAL", "PAID", "ID")))
		for _, s := range sales {
			line := fmt.Sprintf("%-19s %10.2f %10.2f  %s",
				s.At.Local().Format("2006-01-02 15:04"), s.Total, s.Paid, ui.RenderMuted(s.ID))
			if s.Paid < s.Total {
				line += " " + ui.RenderWarn(fmt.Sprintf("owes %.2f", s.Total-s.Paid))
			}
			fmt.Println(line)
		}
	},
}

// recordDebt debits the unpaid remainder to the customer's balance and
// appends the matching ledger entry.
func recordDebt(shop *domain.Store, customerID string, amount float64, saleID string, at time.Time) error {
	customer, ok, err := shop.Customers.Get(customerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("unknown customer %q", customerID)
	}
	customer.Balance -= amount
	if err := shop.Customers.Upsert(customer); err != nil {
		return err
	}
	return shop.LedgerEntries.Upsert(domain.LedgerEntry{
		ID:        domain.NewID("led"),
		PartyType: "customer",
		PartyID:   customerID,
		Amount:    -amount,
		Note:      "sale " + saleID,
		At:        at,
	})
}

func init() {
	saleAddCmd.Flags().StringVar(&saleProduct, "product", "", "product id (required)")
	saleAddCmd.Flags().StringVar(&saleCustomer, "customer", "", "customer id for credit sales")
	saleAddCmd.Flags().Float64Var(&saleQty, "qty", 0, "quantity sold (required)")
	saleAddCmd.Flags().Float64Var(&salePrice, "price", 0, "unit price override (defaults to the product price)")
	saleAddCmd.Flags().Float64Var(&salePaid, "paid", 0, "amount paid now (defaults to the total)")
	saleAddCmd.Flags().BoolVar(&saleFlush, "sync", false, "push to the remote store immediately")

	saleCmd.AddCommand(saleAddCmd)
	saleCmd.AddCommand(saleListCmd)
}
