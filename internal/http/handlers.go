package http

import (
	"net/http"

	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/services"
	"conti/internal/split"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

type expenseView struct {
	core.Expense
	Display string `json:"display"`
}

type expenseList struct {
	Expenses     []expenseView `json:"expenses"`
	Count        int           `json:"count"`
	Total        float64       `json:"total"`
	TotalDisplay string        `json:"total_display"`
}

type billList struct {
	Bills []core.Bill `json:"bills"`
	Count int         `json:"count"`
}

type shareView struct {
	Name    string `json:"name"`
	Amount  string `json:"amount"`
	Display string `json:"display"`
}

type splitResponse struct {
	Bill        core.Bill   `json:"bill"`
	Shares      []shareView `json:"shares"`
	Discrepancy string      `json:"discrepancy"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	// Passwords are taken verbatim; only the names are cleaned.
	username, email := sanitizeInput(in.Username), sanitizeInput(in.Email)
	if err := s.service.Register(r.Context(), username, in.Password, email); err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Body(core.UserInfo{Username: username, Email: email}).
		Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	sess, err := s.service.Login(r.Context(), sanitizeInput(in.Username), in.Password)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	token, err := s.tokens.Issue(sess.Username)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to issue token",
			log.FieldUsername, sess.Username, log.FieldError, err)
		InternalServerError(r).Write(w)
		return
	}
	NewJSONResponse().Body(tokenResponse{Token: token, Username: sess.Username}).Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	info, err := s.service.User(r.Context(), sess)
	if err != nil {
		UnauthorizedError(r).Write(w)
		return
	}
	NewJSONResponse().Body(info).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var in core.ExpenseInput
	if err := decodeJSON(w, r, &in); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	in.Description = sanitizeInput(in.Description)
	in.Category = sanitizeInput(in.Category)
	in.Date = sanitizeInput(in.Date)

	e, err := s.service.RecordExpense(r.Context(), sess, in)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(s.expenseView(e)).Write(w)
}

// handleListExpenses lists the caller's expenses, optionally narrowed to
// one category with ?category=.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var expenses []core.Expense
	if category := queryParam(r, "category"); category != "" {
		expenses = s.service.ExpensesIn(r.Context(), sess, core.Category(category))
	} else {
		expenses = s.service.Expenses(r.Context(), sess)
	}

	out := expenseList{Expenses: make([]expenseView, 0, len(expenses)), Count: len(expenses)}
	for _, e := range expenses {
		out.Expenses = append(out.Expenses, s.expenseView(e))
		out.Total += e.Amount
	}
	out.Total = core.Round2(out.Total).InexactFloat64()
	out.TotalDisplay = core.DisplayMoney(out.Total, s.currency)
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	NewJSONResponse().Body(s.service.Summary(r.Context(), sess)).Write(w)
}

func (s *Server) handleSplitBill(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var req services.SplitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	req.Description = sanitizeInput(req.Description)
	req.Participants = sanitizeInput(req.Participants)
	req.Date = sanitizeInput(req.Date)
	req.DueDate = sanitizeInput(req.DueDate)
	req.Status = sanitizeInput(req.Status)

	bill, res, err := s.service.SplitBill(r.Context(), sess, req)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(s.splitResponse(bill, res)).Write(w)
}

// handleListBills lists the caller's bills, optionally narrowed to one
// status with ?status=.
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	var bills []core.Bill
	if status := queryParam(r, "status"); status != "" {
		bills = s.service.BillsWithStatus(r.Context(), sess, core.BillStatus(status))
	} else {
		bills = s.service.Bills(r.Context(), sess)
	}
	if bills == nil {
		bills = []core.Bill{}
	}
	NewJSONResponse().Body(billList{Bills: bills, Count: len(bills)}).Write(w)
}

func (s *Server) expenseView(e core.Expense) expenseView {
	return expenseView{Expense: e, Display: core.DisplayMoney(e.Amount, s.currency)}
}

func (s *Server) splitResponse(b core.Bill, res split.Result) splitResponse {
	shares := res.Shares()
	out := splitResponse{
		Bill:        b,
		Shares:      make([]shareView, len(shares)),
		Discrepancy: res.Discrepancy().StringFixed(2),
	}
	for i, sh := range shares {
		out.Shares[i] = shareView{
			Name:    sh.Name,
			Amount:  sh.Amount.StringFixed(2),
			Display: core.DisplayMoney(sh.Amount.InexactFloat64(), s.currency),
		}
	}
	return out
}
