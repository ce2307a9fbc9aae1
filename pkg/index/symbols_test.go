package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSymbols(t *testing.T) {
	tests := []struct {
		name     string
		language string
		content  string
		want     []Symbol
	}{
		{
			name:     "python classes and functions",
			language: "python",
			content:  "import os\n\nclass UserRepo:\n    def find(self, id):\n        pass\n\nasync def fetch_all():\n    pass\n",
			want: []Symbol{
				{Name: "UserRepo", Kind: "class", Line: 3},
				{Name: "find", Kind: "function", Line: 4},
				{Name: "fetch_all", Kind: "function", Line: 7},
			},
		},
		{
			name:     "java class and methods",
			language: "java",
			content:  "package app;\n\npublic class PaymentService {\n    private final Gateway gateway;\n\n    public Receipt charge(long amount) {\n        return gateway.submit(amount);\n    }\n}\n",
			want: []Symbol{
				{Name: "PaymentService", Kind: "class", Line: 3},
				{Name: "charge", Kind: "function", Line: 6},
			},
		},
		{
			name:     "csharp types",
			language: "csharp",
			content:  "namespace App;\n\npublic sealed record Invoice(decimal Total);\n\ninternal interface IStore {\n}\n",
			want: []Symbol{
				{Name: "Invoice", Kind: "class", Line: 3},
				{Name: "IStore", Kind: "class", Line: 5},
			},
		},
		{
			name:     "javascript declarations",
			language: "javascript",
			content:  "export class Cart {}\n\nfunction totalOf(items) {}\n\nconst checkout = async (cart) => {};\n",
			want: []Symbol{
				{Name: "Cart", Kind: "class", Line: 1},
				{Name: "totalOf", Kind: "function", Line: 3},
				{Name: "checkout", Kind: "function", Line: 5},
			},
		},
		{
			name:     "typescript interfaces",
			language: "typescript",
			content:  "export interface Order {\n  id: string;\n}\n\ntype OrderId = string;\n\nexport function load(id: OrderId) {}\n",
			want: []Symbol{
				{Name: "Order", Kind: "type", Line: 1},
				{Name: "OrderId", Kind: "type", Line: 5},
				{Name: "load", Kind: "function", Line: 7},
			},
		},
		{
			name:     "go types and methods",
			language: "go",
			content:  "package store\n\ntype Store struct{}\n\nfunc New() *Store { return nil }\n\nfunc (s *Store) Get(key string) string { return \"\" }\n",
			want: []Symbol{
				{Name: "Store", Kind: "type", Line: 3},
				{Name: "New", Kind: "function", Line: 5},
				{Name: "Get", Kind: "function", Line: 7},
			},
		},
		{
			name:     "ruby class module and methods",
			language: "ruby",
			content:  "module Billing\n  class Invoice\n    def total\n    end\n\n    def self.build\n    end\n  end\nend\n",
			want: []Symbol{
				{Name: "Billing", Kind: "class", Line: 1},
				{Name: "Invoice", Kind: "class", Line: 2},
				{Name: "total", Kind: "function", Line: 3},
				{Name: "build", Kind: "function", Line: 6},
			},
		},
		{
			name:     "unknown language",
			language: "fortran",
			content:  "PROGRAM HELLO\nEND",
			want:     nil,
		},
		{
			name:     "empty content",
			language: "python",
			content:  "",
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractSymbols(tt.language, tt.content)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractSymbols_AssignmentIsNotAMethod(t *testing.T) {
	content := "public class Config {\n    private int limit = compute();\n}\n"
	got := extractSymbols("java", content)
	assert.Equal(t, []Symbol{{Name: "Config", Kind: "class", Line: 1}}, got)
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("NullPointerException: cannot invoke UserRepo.find on null from the handler")

	assert.Contains(t, tokens, "nullpointerexception")
	assert.Contains(t, tokens, "userrepo")
	assert.Contains(t, tokens, "find")
	assert.Contains(t, tokens, "handler")

	// Short tokens and stopwords carry no signal.
	assert.NotContains(t, tokens, "on")
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "from")
}

func TestPathTokens(t *testing.T) {
	tokens := pathTokens("src/services/payment_service.py")
	assert.Contains(t, tokens, "services")
	assert.Contains(t, tokens, "payment")
	assert.Contains(t, tokens, "service")
	assert.Contains(t, tokens, "src")
	assert.NotContains(t, tokens, "py")
}

func TestFrameSymbolNames(t *testing.T) {
	assert.Equal(t, []string{"charge"}, frameSymbolNames("charge"))
	assert.ElementsMatch(t,
		[]string{"PaymentService.charge", "PaymentService", "charge"},
		frameSymbolNames("PaymentService.charge"))
}
