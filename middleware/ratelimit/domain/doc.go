// Package domain tem os tipos compartilhados do controle de admissão:
// janela por cliente, pools de vagas e eventos de estatística.
package domain
