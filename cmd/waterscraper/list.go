package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored usage data",
	Long:  `Displays all stored hourly water usage records from the database.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	records, err := db.ListRecords()
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No data found")
		return nil
	}

	fmt.Println("\nWater Usage Data:")
	fmt.Println("--------------------------------------------------------------------------------")
	fmt.Printf("%-36s  %10s  %6s  %7s  %5s\n", "Period", "Gallons", "Temp", "Precip", "Humid")
	fmt.Println("--------------------------------------------------------------------------------")

	var total float64
	for _, sr := range records {
		r := sr.Record
		fmt.Printf("%-36s  %10.1f  %4.0f°F  %5.2fin  %4.0f%%\n",
			r.Period(), r.Gallons, r.TemperatureF, r.PrecipitationIn, r.HumidityPercent)
		total += r.Gallons
	}

	fmt.Println("--------------------------------------------------------------------------------")
	fmt.Printf("Total: %s gallons over %s hours\n",
		humanize.CommafWithDigits(total, 1), humanize.Comma(int64(len(records))))

	return nil
}
