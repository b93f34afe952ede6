package extract

import (
	"strings"
	"testing"

	"github.com/standardbeagle/bladelsp/internal/types"
)

const layoutTemplate = `@extends('layouts.app')

@section('content')
    <x-alert type="error" />
    <livewire:counter />
    {{ __('messages.welcome') }}
    {{-- @include('hidden') --}}
    <a href="{{ route('home') }}">{{ config('app.name') }}</a>
@endsection
`

const controllerSource = `<?php

namespace App\Http\Controllers;

class HomeController extends Controller
{
    public function __construct()
    {
        $this->middleware(['auth', 'verified']);
    }

    public function index()
    {
        $key = env('APP_KEY', 'secret');
        $mailer = app(Mailer::class);
        return view('home.index', ['name' => config('app.name')]);
    }
}
`

// posOf returns the position of the n-th occurrence of needle in content.
func posOf(t *testing.T, content, needle string, n int) types.Position {
	t.Helper()
	off := -1
	for i := 0; i <= n; i++ {
		next := strings.Index(content[off+1:], needle)
		if next < 0 {
			t.Fatalf("needle %q occurrence %d not found", needle, n)
		}
		off += next + 1
	}
	line := strings.Count(content[:off], "\n")
	col := off - (strings.LastIndex(content[:off], "\n") + 1)
	return types.Position{Line: uint32(line), Column: uint32(col)}
}

func texts(facts []types.PatternFact) []string {
	out := make([]string, len(facts))
	for i, f := range facts {
		out[i] = f.Text
	}
	return out
}
