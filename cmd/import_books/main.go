// Command import_books creates books in bulk from a semicolon separated file
// with one "nome;autor;generoId" line per book. It uses the session stored
// by "sgb login", so a librarian or administrator must be logged in.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sgb-web/cli"
	"sgb-web/config"
	"sgb-web/controller"
	"sgb-web/library"
)

func main() {
	var cfgFile string
	cmd := &cobra.Command{
		Use:          "import_books <arquivo>",
		Short:        "Importa livros de um arquivo nome;autor;generoId",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			app, err := cli.NewApp(cfg, os.Stdin, os.Stdout)
			if err != nil {
				return err
			}
			defer app.Close()
			return importBooks(cmd.Context(), app, args[0])
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "arquivo de configuração")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func importBooks(ctx context.Context, app *cli.App, path string) error {
	s := app.Session.Session()
	if !s.Role.Staff() {
		return fmt.Errorf("%w: faça login como bibliotecário ou administrador", library.ErrForbidden)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("abrir %s: %w", path, err)
	}
	defer f.Close()

	fmt.Printf("Importing books from %s...\n", path)

	successCount := 0
	errorCount := 0
	lineNo := 0

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ";")
		if len(parts) != 3 {
			fmt.Printf("Warning: line %d is not nome;autor;generoId, skipping\n", lineNo)
			continue
		}
		title, author, genre := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2])

		fmt.Printf("Importing: %s by %s... ", title, author)

		form := controller.NewCreateController(app.Env, library.Books)
		_ = form.Set("nome", title)
		_ = form.Set("autor", author)
		_ = form.Set("genero", genre)

		rec, err := form.Submit(ctx)
		if err != nil {
			fmt.Printf("ERROR - %s\n", form.Err())
			errorCount++
			continue
		}

		fmt.Printf("SUCCESS (ID: %s)\n", library.Books.ID(rec))
		successCount++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("ler %s: %w", path, err)
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d books\n", successCount)
	fmt.Printf("Errors: %d\n", errorCount)

	if successCount > 0 {
		fmt.Println("\nBooks:")
		list := controller.NewListController(app.Env, library.Books)
		if err := list.Mount(ctx); err != nil {
			fmt.Printf("Error retrieving books: %s\n", list.Err())
			return nil
		}
		fmt.Printf("%-6s %-50s %-30s\n", "ID", "Title", "Author")
		fmt.Println(strings.Repeat("-", 88))
		for _, book := range list.Items() {
			fmt.Printf("%-6s %-50s %-30s\n", library.Books.ID(book), truncateString(book.String("nome"), 50), truncateString(book.String("autor"), 30))
		}
	}
	return nil
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
